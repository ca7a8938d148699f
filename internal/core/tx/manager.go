// Package tx provides transaction management abstractions.
// Ledger services depend on this interface; the implementation lives in
// infrastructure/storage (postgres or memory).
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
//
// Nested calls reuse the existing transaction from context.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Nop runs fn directly. Used by stores without transactional semantics.
type Nop struct{}

// RunInTransaction implements Manager.
func (Nop) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ Manager = Nop{}
