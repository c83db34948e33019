package connection

import (
	"io"
	"net"
	"sync"

	"github.com/go-zoox/logger"
	"github.com/pkg/errors"
)

const (
	DefaultHighWaterMark  = 64 * 1024
	DefaultReadBufferSize = 32 * 1024
)

type Options struct {
	ID string
	// HighWaterMark is the number of queued bytes at which Write reports
	// the connection as full.
	HighWaterMark  int
	ReadBufferSize int

	OnData  func(data []byte)
	OnDrain func()
	// OnClose receives nil when the peer ended the stream.
	OnClose func(err error)
}

// Conn wraps a net.Conn with a pausable reader and a queued writer, so a
// relay can apply backpressure without blocking on socket writes.
type Conn struct {
	ID string

	conn    net.Conn
	options *Options

	mu        sync.Mutex
	cond      *sync.Cond
	queue     [][]byte
	queued    int
	needDrain bool
	paused    bool
	ending    bool
	closed    bool
}

func New(conn net.Conn, options *Options) *Conn {
	if options.HighWaterMark <= 0 {
		options.HighWaterMark = DefaultHighWaterMark
	}
	if options.ReadBufferSize <= 0 {
		options.ReadBufferSize = DefaultReadBufferSize
	}
	if options.ID == "" {
		options.ID = GenerateID()
	}

	c := &Conn{
		ID:      options.ID,
		conn:    conn,
		options: options,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start runs the read and write loops.
func (c *Conn) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// Write queues b and reports whether the queue is still below the high
// water mark. A false return is followed by OnDrain once the queue empties.
func (c *Conn) Write(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.ending {
		return true
	}

	c.queue = append(c.queue, b)
	c.queued += len(b)
	full := c.queued >= c.options.HighWaterMark
	if full {
		c.needDrain = true
	}
	c.cond.Broadcast()

	return !full
}

func (c *Conn) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *Conn) Resume() {
	c.mu.Lock()
	c.paused = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// End stops reading, flushes queued writes and closes the connection.
func (c *Conn) End() {
	c.mu.Lock()
	c.ending = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Destroy closes the connection at once, dropping queued writes.
func (c *Conn) Destroy() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.queued = 0
	c.cond.Broadcast()
	c.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		logger.Debugf("[connection: %s] close: %v", c.ID, err)
	}
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) readLoop() {
	buf := make([]byte, c.options.ReadBufferSize)
	for {
		c.mu.Lock()
		for c.paused && !c.closed && !c.ending {
			c.cond.Wait()
		}
		stop := c.closed || c.ending
		c.mu.Unlock()
		if stop {
			return
		}

		n, err := c.conn.Read(buf)
		if n > 0 && c.options.OnData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.options.OnData(data)
		}

		if err != nil {
			if c.isClosed() {
				return
			}

			if errors.Is(err, io.EOF) {
				err = nil
			}
			if c.options.OnClose != nil {
				c.options.OnClose(err)
			}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed && !c.ending {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			// ending with nothing left to flush
			c.mu.Unlock()
			c.Destroy()
			return
		}

		chunk := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		_, err := c.conn.Write(chunk)

		c.mu.Lock()
		c.queued -= len(chunk)
		drain := c.queued == 0 && c.needDrain && !c.closed
		if drain {
			c.needDrain = false
		}
		closed := c.closed
		c.mu.Unlock()

		if err != nil {
			if !closed && c.options.OnClose != nil {
				c.options.OnClose(errors.Wrap(err, "write"))
			}
			c.Destroy()
			return
		}

		if drain && c.options.OnDrain != nil {
			c.options.OnDrain()
		}
	}
}
