package stock

import (
	"context"
	"fmt"

	"stockledger/internal/core/entity"
)

// Cursor streams a product's movements in ledger order, one page at a time.
// It can be restarted from any Position it has yielded.
//
//	cur, _ := svc.QueryRange(ctx, productID, from, to, stock.RangeOptions{})
//	for cur.Next(ctx) {
//	    m := cur.Movement()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	repo Repository
	q    PageQuery

	page    []entity.Movement
	idx     int
	current entity.Movement
	last    *entity.Position
	done    bool
	err     error
}

func newCursor(repo Repository, q PageQuery) *Cursor {
	return &Cursor{repo: repo, q: q, last: q.After}
}

// Next advances to the next movement. It returns false at the end of the range
// or on error; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.idx >= len(c.page) {
		if c.done {
			return false
		}
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}
		q := c.q
		q.After = c.last
		page, err := c.repo.ListMovements(ctx, q)
		if err != nil {
			c.err = fmt.Errorf("list movements: %w", err)
			return false
		}
		c.page, c.idx = page, 0
		if len(page) < q.Limit {
			c.done = true
		}
		if len(page) == 0 {
			return false
		}
	}

	c.current = c.page[c.idx]
	c.idx++
	pos := c.current.Position()
	c.last = &pos
	return true
}

// Movement returns the movement at the current position.
func (c *Cursor) Movement() entity.Movement { return c.current }

// Position returns the key of the last yielded movement, or the resume key if
// nothing has been yielded yet. Pass it as RangeOptions.After to restart.
func (c *Cursor) Position() *entity.Position { return c.last }

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Collect drains the cursor. A failure discards everything read so far.
func Collect(ctx context.Context, c *Cursor) ([]entity.Movement, error) {
	var out []entity.Movement
	for c.Next(ctx) {
		out = append(out, c.Movement())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
