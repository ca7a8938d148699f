// Package numerator provides contracts for human-readable sequential codes.
// Implementations live in the infrastructure layer.
package numerator

import (
	"context"
	"time"
)

// Generator generates sequential codes.
type Generator interface {
	// GetNextNumber generates the next code.
	// Pattern: PREFIX[-YEAR]-XXXXX (e.g., PRD-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber sets the current counter value (for imports).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
