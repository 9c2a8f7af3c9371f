package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidhhya1/Conversational-Emotion-Recognizer/emotion"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/responder"
)

type fakeTranscriber struct {
	text  string
	err   error
	delay time.Duration

	mu  sync.Mutex
	got [][]byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	f.got = append(f.got, audio)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeTranscriber) calls() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

type fakeTone struct {
	hz float64
	ok bool
}

func (f fakeTone) EstimateTone([]byte) (float64, bool) { return f.hz, f.ok }

type fakeEmotion struct {
	res emotion.Result
	err error
}

func (f fakeEmotion) ClassifyEmotion(context.Context, string) (emotion.Result, error) {
	return f.res, f.err
}

type fakeResponder struct {
	reply string
	err   error
	block bool

	mu  sync.Mutex
	req responder.Request
}

func (f *fakeResponder) GenerateReply(ctx context.Context, req responder.Request) (string, error) {
	f.mu.Lock()
	f.req = req
	f.mu.Unlock()
	if f.block {
		select {} // ignores its context
	}
	return f.reply, f.err
}

type fakeSynth struct {
	audio map[string][]byte
	err   error
	panic bool
}

func (f fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	if f.panic {
		panic("synth exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.audio[text]; ok {
		return a, nil
	}
	return []byte("wav:" + text), nil
}

var errBoom = errors.New("boom")

type frame struct {
	messageType int
	data        []byte
}

// fakeConn feeds queued frames to ReadMessage and records writes. ReadMessage
// honours the read deadline. A close frame written by the session is echoed
// back the way a browser answers it; with autoPong every ping is answered.
type fakeConn struct {
	in        chan frame
	out       chan []byte
	done      chan struct{}
	peerClose chan struct{}
	once      sync.Once
	closeOnce sync.Once
	failWr    bool
	autoPong  bool

	mu       sync.Mutex
	deadline time.Time
	pong     func(string) error
	pings    int
	// set when the close frame went out while the connection was still open
	closeFrameSent bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:        make(chan frame, 64),
		out:       make(chan []byte, 64),
		done:      make(chan struct{}),
		peerClose: make(chan struct{}),
	}
}

var errReadTimeout = errors.New("read tcp: i/o timeout")

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		deadline := c.deadline
		c.mu.Unlock()

		wait := time.Hour
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return 0, nil, errReadTimeout
			}
		}
		timer := time.NewTimer(wait)

		select {
		case f, ok := <-c.in:
			timer.Stop()
			if !ok {
				return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
			}
			return f.messageType, f.data, nil
		case <-c.peerClose:
			timer.Stop()
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		case <-c.done:
			timer.Stop()
			return 0, nil, errors.New("use of closed connection")
		case <-timer.C:
			// the deadline may have moved while waiting
		}
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.failWr {
		return errors.New("broken pipe")
	}
	select {
	case <-c.done:
		return errors.New("use of closed connection")
	default:
	}
	c.out <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	switch messageType {
	case websocket.CloseMessage:
		c.mu.Lock()
		c.closeFrameSent = !c.isClosed()
		c.mu.Unlock()
		c.closeOnce.Do(func() { close(c.peerClose) })
	case websocket.PingMessage:
		c.mu.Lock()
		c.pings++
		pong := c.pong
		c.mu.Unlock()
		if c.autoPong && pong != nil {
			return pong(string(data))
		}
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pong = h
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) sentCloseFrame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFrameSent
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) sendAudio(b []byte) { c.in <- frame{websocket.BinaryMessage, b} }
func (c *fakeConn) sendText(s string)  { c.in <- frame{websocket.TextMessage, []byte(s)} }
func (c *fakeConn) hangUp()            { close(c.in) }
