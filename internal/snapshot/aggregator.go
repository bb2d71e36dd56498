package snapshot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"holdersnap/internal/domain"
	"holdersnap/internal/scan"
)

// parseHolders converts raw explorer entries into domain records, failing on
// the first quantity that does not parse. Nothing is committed on failure so
// the page can be retried whole.
func parseHolders(raw []scan.Holder) ([]domain.HolderRecord, error) {
	out := make([]domain.HolderRecord, 0, len(raw))
	for _, h := range raw {
		q, err := decimal.NewFromString(strings.TrimSpace(h.Quantity))
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q for %s: %w", h.Quantity, h.Address, err)
		}
		out = append(out, domain.HolderRecord{Address: h.Address, Quantity: q})
	}
	return out, nil
}

// accumulator collects holder records up to a cap, keeping the running total
// exact. With merging enabled a repeated address folds its quantity into the
// first occurrence and does not advance the count.
type accumulator struct {
	merge      bool
	maxRecords int
	records    []domain.HolderRecord
	index      map[string]int
	total      decimal.Decimal
}

func newAccumulator(merge bool, maxRecords int) *accumulator {
	a := &accumulator{
		merge:      merge,
		maxRecords: maxRecords,
		total:      decimal.Zero,
	}
	if merge {
		a.index = make(map[string]int)
	}
	return a
}

// add consumes records in order until the cap is reached. It reports how many
// were consumed and whether the accumulator is now full; records past the cap
// are dropped and do not contribute to the total.
func (a *accumulator) add(records []domain.HolderRecord) (consumed int, capped bool) {
	for _, r := range records {
		if a.merge {
			if i, ok := a.index[r.Address]; ok {
				a.records[i].Quantity = a.records[i].Quantity.Add(r.Quantity)
				a.total = a.total.Add(r.Quantity)
				consumed++
				continue
			}
		}

		if len(a.records) >= a.maxRecords {
			return consumed, true
		}

		a.records = append(a.records, r)
		if a.merge {
			a.index[r.Address] = len(a.records) - 1
		}
		a.total = a.total.Add(r.Quantity)
		consumed++

		if len(a.records) >= a.maxRecords {
			return consumed, true
		}
	}
	return consumed, false
}

func (a *accumulator) count() int {
	return len(a.records)
}

func (a *accumulator) result(contract string, pages int, truncated bool) *domain.AggregationResult {
	return &domain.AggregationResult{
		Contract:      contract,
		Records:       a.records,
		TotalQuantity: a.total,
		PagesFetched:  pages,
		Truncated:     truncated,
	}
}
