package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidhhya1/Conversational-Emotion-Recognizer/logging"
)

type runningSession struct {
	*Session
	conn *fakeConn
	done chan error
}

func startSession(t *testing.T, p *Pipeline, maxQueued int) *runningSession {
	t.Helper()
	return startSessionWith(t, p, newFakeConn(), SessionConfig{
		WriteTimeout:        time.Second,
		PingInterval:        time.Minute,
		MaxQueuedUtterances: maxQueued,
	})
}

func startSessionWith(t *testing.T, p *Pipeline, conn *fakeConn, c SessionConfig) *runningSession {
	t.Helper()
	s := NewSession("test", conn, p, c, logging.Discard(), nil)

	rs := &runningSession{Session: s, conn: conn, done: make(chan error, 1)}
	go func() { rs.done <- s.Run(context.Background()) }()
	t.Cleanup(func() { _ = conn.Close() })
	return rs
}

func (rs *runningSession) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-rs.conn.out:
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func (rs *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSession_Scenario(t *testing.T) {
	ports, tr, _ := happyPorts()
	rs := startSession(t, newTestPipeline(ports), 4)
	assert.Equal(t, StateIdle, rs.State())

	rs.conn.sendAudio([]byte{0x01, 0x02})
	assert.Equal(t, map[string]any{"type": "interim_transcript", "text": "Listening..."}, rs.next(t))
	assert.Equal(t, StateAccumulating, rs.State())

	rs.conn.sendAudio([]byte{0x03})
	assert.Equal(t, "interim_transcript", rs.next(t)["type"])

	rs.conn.sendText(`{"event":"end_of_speech"}`)
	assert.Equal(t, map[string]any{
		"type":      "final_response",
		"user_text": "hello",
		"bot_text":  "Glad to hear that!",
		"emotion":   "happy",
		"audio":     "qrs=",
	}, rs.next(t))

	require.Len(t, tr.calls(), 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, tr.calls()[0])
	require.Eventually(t, func() bool { return rs.State() == StateIdle }, time.Second, 5*time.Millisecond)

	rs.conn.hangUp()
	assert.NoError(t, rs.wait(t))
	assert.Equal(t, StateClosed, rs.State())
}

func TestSession_EndOfSpeechWithoutAudio(t *testing.T) {
	ports, tr, _ := happyPorts()
	rs := startSession(t, newTestPipeline(ports), 4)

	rs.conn.sendText(`{"event":"end_of_speech"}`)
	msg := rs.next(t)
	assert.Equal(t, NoAudioTranscript, msg["user_text"])
	assert.Equal(t, NoAudioReply, msg["bot_text"])
	assert.Equal(t, "Neutral", msg["emotion"])
	assert.Empty(t, tr.calls())
}

func TestSession_IgnoresMalformedAndUnknownControl(t *testing.T) {
	ports, tr, _ := happyPorts()
	rs := startSession(t, newTestPipeline(ports), 4)

	rs.conn.sendAudio([]byte{0x07})
	rs.next(t)
	rs.conn.sendText(`not json`)
	rs.conn.sendText(`{"event":"pause"}`)
	rs.conn.sendText(`{"event":"end_of_speech"}`)

	msg := rs.next(t)
	assert.Equal(t, "final_response", msg["type"])
	require.Len(t, tr.calls(), 1)
	assert.Equal(t, []byte{0x07}, tr.calls()[0])
}

// Frames that arrive while an utterance is being processed belong to the
// next utterance, and results come back in order.
func TestSession_UtterancesProcessedInOrder(t *testing.T) {
	ports, _, _ := happyPorts()
	tr := &fakeTranscriber{text: "hello", delay: 50 * time.Millisecond}
	ports.Transcriber = tr
	rs := startSession(t, newTestPipeline(ports), 4)

	rs.conn.sendAudio([]byte{0x01})
	rs.conn.sendText(`{"event":"end_of_speech"}`)
	rs.conn.sendAudio([]byte{0x02})
	rs.conn.sendAudio([]byte{0x03})
	rs.conn.sendText(`{"event":"end_of_speech"}`)

	var finals, acks int
	for finals < 2 {
		switch rs.next(t)["type"] {
		case TypeFinalResponse:
			finals++
		case TypeInterimTranscript:
			acks++
		}
	}
	assert.Equal(t, 3, acks)

	calls := tr.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []byte{0x01}, calls[0])
	assert.Equal(t, []byte{0x02, 0x03}, calls[1])
}

func TestSession_StateWhileProcessing(t *testing.T) {
	ports, _, _ := happyPorts()
	ports.Transcriber = &fakeTranscriber{text: "hello", delay: 200 * time.Millisecond}
	rs := startSession(t, newTestPipeline(ports), 1)

	rs.conn.sendAudio([]byte{0x01})
	rs.next(t)
	rs.conn.sendText(`{"event":"end_of_speech"}`)
	require.Eventually(t, func() bool { return rs.State() == StateProcessing }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "final_response", rs.next(t)["type"])
	require.Eventually(t, func() bool { return rs.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestSession_WriteFailureEndsSession(t *testing.T) {
	ports, _, _ := happyPorts()
	rs := startSession(t, newTestPipeline(ports), 4)
	rs.conn.failWr = true

	rs.conn.sendAudio([]byte{0x01})
	err := rs.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, StateClosed, rs.State())
}

func TestSession_ContextCancelStops(t *testing.T) {
	ports, _, _ := happyPorts()
	conn := newFakeConn()
	s := NewSession("cancel", conn, newTestPipeline(ports), SessionConfig{}, logging.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, conn.sentCloseFrame(), "close frame must precede closing the connection")
	assert.True(t, conn.isClosed())
}

func TestSession_SilentPeerTimesOut(t *testing.T) {
	ports, _, _ := happyPorts()
	conn := newFakeConn()
	rs := startSessionWith(t, newTestPipeline(ports), conn, SessionConfig{
		WriteTimeout: time.Second,
		PingInterval: 20 * time.Millisecond,
		ReadTimeout:  60 * time.Millisecond,
	})

	rs.conn.sendAudio([]byte{0x01})
	rs.next(t)

	err := rs.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i/o timeout")
	assert.Equal(t, StateClosed, rs.State())
	assert.Positive(t, conn.pingCount())
	assert.True(t, conn.isClosed())
}

func TestSession_PongsKeepPeerAlive(t *testing.T) {
	ports, _, _ := happyPorts()
	conn := newFakeConn()
	conn.autoPong = true
	rs := startSessionWith(t, newTestPipeline(ports), conn, SessionConfig{
		WriteTimeout: time.Second,
		PingInterval: 20 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
	})

	require.Eventually(t, func() bool { return conn.pingCount() >= 10 }, 2*time.Second, 5*time.Millisecond)
	select {
	case err := <-rs.done:
		t.Fatalf("session ended while the peer answered pings: %v", err)
	default:
	}
	assert.NotEqual(t, StateClosed, rs.State())

	rs.conn.hangUp()
	assert.NoError(t, rs.wait(t))
}

func TestSession_ZeroLengthFrameStaysIdle(t *testing.T) {
	ports, _, _ := happyPorts()
	rs := startSession(t, newTestPipeline(ports), 4)

	rs.conn.sendAudio([]byte{})
	assert.Equal(t, "interim_transcript", rs.next(t)["type"])
	assert.Equal(t, StateIdle, rs.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "PROCESSING", StateProcessing.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
