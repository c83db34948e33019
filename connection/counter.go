package connection

import "sync/atomic"

// Counter tracks live connections.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() int64 {
	return c.n.Add(1)
}

func (c *Counter) Dec() int64 {
	return c.n.Add(-1)
}

func (c *Counter) Value() int64 {
	return c.n.Load()
}
