package registry

import "errors"

// ErrDuplicateBinding is returned when a (tenant, scope) pair is already
// bound and the caller did not ask for a refresh.
var ErrDuplicateBinding = errors.New("binding already exists")

// ErrBindingNotFound is returned when no binding matches a reference.
var ErrBindingNotFound = errors.New("no binding for reference")

// ErrUnknownScope is returned for a scope index outside the configured list.
var ErrUnknownScope = errors.New("unknown scope")
