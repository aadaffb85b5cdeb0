package crdt

// Counter is a replicated PN-counter. Local increments and decrements are
// staged as individual operations until stored.
type Counter struct {
	key    string
	value  int64
	staged []Operation
}

func NewCounter(key string) *Counter {
	return &Counter{key: key}
}

func (c *Counter) Key() string    { return c.key }
func (c *Counter) Type() DataType { return TypeCounter }

// Value returns the last known server value with staged updates applied.
func (c *Counter) Value() int64 {
	v := c.value
	for _, op := range c.staged {
		switch o := op.(type) {
		case Increment:
			v += o.Amount
		case Decrement:
			v -= o.Amount
		}
	}
	return v
}

// Increment stages an increment by amount.
func (c *Counter) Increment(amount int64) *Counter {
	c.staged = append(c.staged, Increment{Key: c.key, Amount: amount})
	return c
}

// Decrement stages a decrement by amount.
func (c *Counter) Decrement(amount int64) *Counter {
	c.staged = append(c.staged, Decrement{Key: c.key, Amount: amount})
	return c
}

// Operations returns the staged updates in staging order.
func (c *Counter) Operations() []Operation {
	out := make([]Operation, len(c.staged))
	copy(out, c.staged)
	return out
}

// ClearStaged drops staged updates, typically after a successful store.
func (c *Counter) ClearStaged() {
	c.staged = nil
}
