package tcp

type FlowState int

const (
	FlowOpen FlowState = iota
	FlowBlocked
)

func (s FlowState) String() string {
	if s == FlowBlocked {
		return "blocked"
	}
	return "open"
}

// Flow is one direction of a relay. While blocked, nothing is written to
// dst; chunks wait in the backlog and src stays paused until dst drains.
type Flow struct {
	src     Endpoint
	dst     Endpoint
	state   FlowState
	backlog [][]byte
}

func NewFlow(src, dst Endpoint) *Flow {
	return &Flow{
		src: src,
		dst: dst,
	}
}

func (f *Flow) State() FlowState {
	return f.state
}

func (f *Flow) Send(b []byte) {
	if len(b) == 0 {
		return
	}

	if f.state == FlowBlocked {
		f.backlog = append(f.backlog, b)
		return
	}

	if !f.dst.Write(b) {
		f.state = FlowBlocked
		f.src.Pause()
	}
}

// Drain is called when dst has flushed its queue.
func (f *Flow) Drain() {
	if f.state != FlowBlocked {
		return
	}

	for len(f.backlog) > 0 {
		b := f.backlog[0]
		f.backlog[0] = nil
		f.backlog = f.backlog[1:]

		if !f.dst.Write(b) {
			return
		}
	}

	f.state = FlowOpen
	f.src.Resume()
}
