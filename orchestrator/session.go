package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vidhhya1/Conversational-Emotion-Recognizer/audio"
)

var ErrSessionClosed = errors.New("session closed")

type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateProcessing:
		return "PROCESSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SessionConfig bounds a session's transport. ReadTimeout is how long the
// peer may stay silent, pongs included, before the session is dropped; it
// defaults to twice PingInterval.
type SessionConfig struct {
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	ReadTimeout         time.Duration
	MaxQueuedUtterances int
}

// Session drives one connection. The read loop appends audio and cuts
// utterances, a single worker runs them through the pipeline in order, and a
// single writer owns all writes to the connection.
//
// The accumulator is drained when end_of_speech arrives, so frames received
// while an earlier utterance is PROCESSING already belong to the next one.
// Cut utterances wait in a bounded queue; when it is full the read loop
// blocks until the worker catches up.
type Session struct {
	id       string
	conn     Conn
	pipeline *Pipeline
	cfg      SessionConfig
	log      logrus.FieldLogger
	obs      Observer

	acc      *audio.Accumulator
	queue    chan []byte
	outbound chan []byte

	mu       sync.Mutex
	inFlight int
	closed   bool
	turns    int
}

func NewSession(id string, conn Conn, p *Pipeline, c SessionConfig, log logrus.FieldLogger, obs Observer) *Session {
	if obs == nil {
		obs = nopObserver{}
	}
	if c.MaxQueuedUtterances < 1 {
		c.MaxQueuedUtterances = 1
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadTimeout <= c.PingInterval {
		c.ReadTimeout = 2 * c.PingInterval
	}
	return &Session{
		id:       id,
		conn:     conn,
		pipeline: p,
		cfg:      c,
		log:      log.WithField("session_id", id),
		obs:      obs,
		acc:      audio.NewAccumulator(),
		queue:    make(chan []byte, c.MaxQueuedUtterances),
		outbound: make(chan []byte, 64),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case s.inFlight > 0:
		return StateProcessing
	case !s.acc.Empty():
		return StateAccumulating
	default:
		return StateIdle
	}
}

// Run serves the connection until the client leaves, a read or write fails,
// or ctx is done. A clean client close returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.obs.SessionStarted()
	s.log.Info("client connected")

	var wg sync.WaitGroup
	writeErr := make(chan error, 1)
	readDone := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := s.writeLoop(ctx, readDone)
		// unblocks the read loop
		_ = s.conn.Close()
		writeErr <- err
		cancel()
	}()
	go func() {
		defer wg.Done()
		s.processLoop(ctx)
	}()

	err := s.readLoop(ctx)
	close(readDone)
	cancel()
	wg.Wait()
	if werr := <-writeErr; err == nil && werr != nil {
		err = werr
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.acc.DrainAndReset()

	reason := "client_closed"
	if err != nil {
		reason = "transport_error"
		s.log.WithError(err).Warn("session ended")
	} else {
		s.log.Info("client disconnected")
	}
	s.obs.SessionEnded(reason)
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			err = s.onAudio(ctx, data)
		case websocket.TextMessage:
			err = s.onControl(ctx, data)
		}
		if err != nil {
			// writer or context gone; Run reports the cause
			return nil
		}
	}
}

func (s *Session) onAudio(ctx context.Context, frame []byte) error {
	before := s.State()
	s.acc.Append(frame)
	s.obs.FrameReceived(len(frame))
	if before == StateIdle {
		s.log.WithField("state", StateAccumulating).Debug("state change")
	}
	return s.send(ctx, listening())
}

func (s *Session) onControl(ctx context.Context, data []byte) error {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.WithError(err).Warn("ignoring malformed control message")
		return nil
	}
	if ev.Event != EventEndOfSpeech {
		s.log.WithField("event", ev.Event).Debug("ignoring unknown control event")
		return nil
	}

	frames, size := s.acc.Stats()
	utterance := s.acc.DrainAndReset()

	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{
		"frames": frames,
		"bytes":  size,
		"state":  StateProcessing,
	}).Info("end of speech")

	select {
	case s.queue <- utterance:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case utterance := <-s.queue:
			s.mu.Lock()
			s.turns++
			n := s.turns
			s.mu.Unlock()

			turn := s.pipeline.run(ctx, s.log.WithField("utterance", n), utterance)
			if err := s.send(ctx, NewFinalResponse(turn.Result)); err != nil {
				return
			}

			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			s.log.WithField("utterance", n).Info("ready for next utterance")
		}
	}
}

func (s *Session) send(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

// writeLoop owns every write. When ctx ends it sends a normal close frame
// and gives the peer up to WriteTimeout to answer before returning, so the
// caller closes the connection only after the close handshake.
func (s *Session) writeLoop(ctx context.Context, readDone <-chan struct{}) error {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.cfg.WriteTimeout))
			if err == nil {
				select {
				case <-readDone:
				case <-time.After(s.cfg.WriteTimeout):
				}
			}
			return nil
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case payload := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}
