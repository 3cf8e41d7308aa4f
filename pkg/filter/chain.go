package filter

import (
	"context"

	"github.com/user/framelab/pkg/frame"
)

// Chain is the ordered list of operations replayed on every incoming frame of a
// video or live source. The zero Chain is empty and runs as identity.
type Chain struct {
	ops []Op
}

// Add records op according to mode. In ModeIndependent the chain is cleared
// first, so it holds at most one entry; in ModeCascade op is appended.
func (c *Chain) Add(op Op, mode Mode) {
	if mode == ModeIndependent {
		c.ops = c.ops[:0]
	}
	c.ops = append(c.ops, op)
}

// Clear removes every entry.
func (c *Chain) Clear() {
	c.ops = nil
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	return len(c.ops)
}

// Ops returns a copy of the entries in application order.
func (c *Chain) Ops() []Op {
	out := make([]Op, len(c.ops))
	copy(out, c.ops)
	return out
}

// Run folds the chain over f in order. An empty chain returns f unchanged.
// Run stops at the first failing operation and returns the frame produced so far.
func (c *Chain) Run(ctx context.Context, f frame.Frame, env Env) (frame.Frame, error) {
	cur := f
	for _, op := range c.ops {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		next, err := Apply(ctx, cur, op, env)
		if err != nil {
			return cur, err
		}
		cur = next
	}
	return cur, nil
}
