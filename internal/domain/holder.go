package domain

import "github.com/shopspring/decimal"

// HolderRecord is a single asset holder entry as consumed from the explorer.
type HolderRecord struct {
	Address  string          // holder account address as reported by the explorer
	Quantity decimal.Decimal // exact held quantity (decimal string on the wire)
}

// AggregationResult is the outcome of draining holder pagination for one asset.
type AggregationResult struct {
	Contract      string          // asset contract address the run was for
	Records       []HolderRecord  // accumulated entries in encounter order
	TotalQuantity decimal.Decimal // exact sum of every consumed quantity
	PagesFetched  int             // pages successfully consumed
	Truncated     bool            // true when stopped by cap or error budget
}

// RecordCount returns the number of accumulated entries.
func (r *AggregationResult) RecordCount() int {
	return len(r.Records)
}
