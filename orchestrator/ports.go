package orchestrator

import (
	"context"
	"time"

	"github.com/vidhhya1/Conversational-Emotion-Recognizer/emotion"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/responder"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type ToneEstimator interface {
	EstimateTone(audio []byte) (hz float64, ok bool)
}

type EmotionClassifier interface {
	ClassifyEmotion(ctx context.Context, text string) (emotion.Result, error)
}

type Responder interface {
	GenerateReply(ctx context.Context, req responder.Request) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Ports are the process-wide model and client handles. They are read-only
// after startup and shared by every session.
type Ports struct {
	Transcriber Transcriber
	Tone        ToneEstimator
	Emotion     EmotionClassifier
	Responder   Responder
	Synthesizer Synthesizer
}

// Observer receives session and pipeline events, typically for metrics.
type Observer interface {
	SessionStarted()
	SessionEnded(reason string)
	FrameReceived(size int)
	StageDone(stage string, elapsed time.Duration, err error)
	Fallback(stage string)
	TurnCompleted(kind string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SessionStarted() {}
func (nopObserver) SessionEnded(string) {}
func (nopObserver) FrameReceived(int) {}
func (nopObserver) StageDone(string, time.Duration, error) {}
func (nopObserver) Fallback(string) {}
func (nopObserver) TurnCompleted(string, time.Duration) {}
