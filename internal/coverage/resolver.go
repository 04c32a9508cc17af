package coverage

import "errors"

// DefaultMinRemaining is the minimum number of position units that must
// remain between the requested position and a range's end for the range to
// be usable. A nearly exhausted range would only yield a sliver of content,
// so the caller should fetch a fresh chunk instead. Tunable via config.
const DefaultMinRemaining = 3000

// ErrNotFound is returned when a chunk or artifact lookup misses.
var ErrNotFound = errors.New("not found")

// ErrNoUsableChunk signals that no existing range covers the requested
// position with enough remaining content, and a fetch is needed.
var ErrNoUsableChunk = errors.New("no usable chunk")

// Resolver decides whether an existing coverage range can serve a requested
// reading position.
type Resolver struct {
	// MinRemaining is the usability threshold in position units.
	MinRemaining int
}

// NewResolver creates a resolver. minRemaining <= 0 selects the default.
func NewResolver(minRemaining int) *Resolver {
	if minRemaining <= 0 {
		minRemaining = DefaultMinRemaining
	}
	return &Resolver{MinRemaining: minRemaining}
}

// Resolve scans the book's ranges for one that covers requestedPos with at
// least MinRemaining position units left before its end. Returns
// ErrNoUsableChunk when every range is either out of span or nearly
// exhausted at the requested position.
func (r *Resolver) Resolve(cov *BookCoverage, requestedPos int) (*CoverageRange, error) {
	for i := range cov.Ranges {
		rng := &cov.Ranges[i]
		if requestedPos < rng.StartPositionID || requestedPos > rng.EndPositionID {
			continue
		}
		if rng.EndPositionID-requestedPos < r.MinRemaining {
			continue
		}
		return rng, nil
	}
	return nil, ErrNoUsableChunk
}
