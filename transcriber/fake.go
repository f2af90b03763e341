package transcriber

import (
	"context"
	"io"
	"net"
	"sync"

	"halo/encoder"
)

// FakeDialer hands out in-memory connections. With Gate set, Dial blocks
// until the gate is closed, which lets callers observe StateConnecting.
type FakeDialer struct {
	Err       error
	Gate      chan struct{}
	Fragments []string // scripted replies, one per frame received

	mu    sync.Mutex
	dials int
	conns []*FakeConn
}

func NewFakeDialer(fragments ...string) *FakeDialer {
	return &FakeDialer{Fragments: fragments}
}

func (d *FakeDialer) Dial(ctx context.Context, _ string, _ Config) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewFakeConn(d.Fragments...)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recent connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type recvItem struct {
	msg ServerMessage
	err error
}

type FakeConn struct {
	SendErr error

	mu      sync.Mutex
	sent    []encoder.Frame
	script  []string
	inbox   chan recvItem
	closed  chan struct{}
	closeMu sync.Once
}

func NewFakeConn(script ...string) *FakeConn {
	return &FakeConn{
		script: script,
		inbox:  make(chan recvItem, 64),
		closed: make(chan struct{}),
	}
}

func (c *FakeConn) Send(f encoder.Frame) error {
	if c.IsClosed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, f)
	if len(c.script) > 0 {
		c.push(recvItem{msg: transcriptMessage(c.script[0])})
		c.script = c.script[1:]
	}
	return nil
}

func (c *FakeConn) Recv() (ServerMessage, error) {
	select {
	case it := <-c.inbox:
		return it.msg, it.err
	case <-c.closed:
		return ServerMessage{}, net.ErrClosed
	}
}

func (c *FakeConn) Close() error {
	c.closeMu.Do(func() { close(c.closed) })
	return nil
}

func (c *FakeConn) push(it recvItem) {
	select {
	case c.inbox <- it:
	default:
	}
}

func transcriptMessage(text string) ServerMessage {
	return ServerMessage{ServerContent: &ServerContent{InputTranscription: &Transcription{Text: text}}}
}

// Transcribe delivers an input-transcription message carrying text.
func (c *FakeConn) Transcribe(text string) { c.push(recvItem{msg: transcriptMessage(text)}) }

// Deliver queues an arbitrary server message.
func (c *FakeConn) Deliver(msg ServerMessage) { c.push(recvItem{msg: msg}) }

// Fail makes the next Recv return err.
func (c *FakeConn) Fail(err error) { c.push(recvItem{err: err}) }

// Hangup simulates a clean server close.
func (c *FakeConn) Hangup() { c.push(recvItem{err: io.EOF}) }

func (c *FakeConn) Sent() []encoder.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]encoder.Frame(nil), c.sent...)
}

func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
