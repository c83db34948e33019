package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-zoox/shadowsocks/connection"
)

// loop feeds the events of one connection to its relay from a single
// goroutine.
type loop struct {
	ctx            context.Context
	id             string
	relay          *Relay
	events         chan event
	done           chan struct{}
	mu             sync.RWMutex
	stopped        bool
	timeout        time.Duration
	connectTimeout time.Duration
	highWaterMark  int
}

func newLoop(ctx context.Context, id string, cfg *ServeConfig) *loop {
	return &loop{
		ctx:            ctx,
		id:             id,
		events:         make(chan event, 16),
		done:           make(chan struct{}),
		timeout:        cfg.Timeout,
		connectTimeout: cfg.ConnectTimeout,
		highWaterMark:  cfg.HighWaterMark,
	}
}

// post reports false once the loop has stopped. An event accepted by
// post is always handled, if only to release what it carries.
func (l *loop) post(ev event) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.stopped {
		return false
	}

	select {
	case l.events <- ev:
		return true
	case <-l.done:
		return false
	}
}

// endpoint wraps conn so its reads, drains and closes become events. A
// connection whose events can no longer be delivered is destroyed.
func (l *loop) endpoint(side Side, conn net.Conn) *connection.Conn {
	var c *connection.Conn
	deliver := func(ev event) {
		if !l.post(ev) {
			c.Destroy()
		}
	}

	c = connection.New(conn, &connection.Options{
		ID:            l.id,
		HighWaterMark: l.highWaterMark,
		OnData: func(data []byte) {
			deliver(dataEvent{side: side, data: data})
		},
		OnDrain: func() {
			deliver(drainEvent{side: side})
		},
		OnClose: func(err error) {
			deliver(closeEvent{side: side, err: err})
		},
	})
	return c
}

func (l *loop) dial(address string) {
	go func() {
		conn, err := Connect(l.ctx, address, l.connectTimeout)
		if err != nil {
			l.post(connectFailedEvent{err: err})
			return
		}

		remote := l.endpoint(SideRemote, conn)
		if !l.post(connectedEvent{remote: remote}) {
			remote.Destroy()
			return
		}
		remote.Start()
	}()
}

func (l *loop) resetIdle(idle *time.Timer) {
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	idle.Reset(l.timeout)
}

func (l *loop) run() {
	idle := time.NewTimer(l.timeout)
	defer idle.Stop()

	for !l.relay.Done() {
		select {
		case ev := <-l.events:
			switch ev.(type) {
			case dataEvent, drainEvent:
				l.resetIdle(idle)
			}
			l.relay.Handle(ev)
		case <-idle.C:
			l.relay.Handle(timeoutEvent{})
		case <-l.ctx.Done():
			l.relay.Handle(closeEvent{side: SideClient, err: l.ctx.Err()})
		}
	}

	// done unblocks posters waiting on a full queue, so the write lock
	// cannot wait on them
	close(l.done)
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	// release a remote that connected while the relay was closing
	for {
		select {
		case ev := <-l.events:
			l.relay.Handle(ev)
		default:
			return
		}
	}
}
