package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/emotion"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/responder"
)

const (
	StageTranscribe = "transcribe"
	StageTone       = "tone"
	StageClassify   = "classify"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
)

const (
	turnSpeech  = "speech"
	turnNoAudio = "no_audio"
)

// Pipeline runs one utterance through transcription, tone, emotion, reply
// and synthesis. Every stage is isolated: a failure or timeout becomes a
// fallback value and the turn goes on.
type Pipeline struct {
	ports    Ports
	timeouts cfg.Timeouts
	log      logrus.FieldLogger
	obs      Observer
}

func NewPipeline(p Ports, t cfg.Timeouts, log logrus.FieldLogger, obs Observer) *Pipeline {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pipeline{ports: p, timeouts: t, log: log, obs: obs}
}

// Run always returns a fully populated result.
func (p *Pipeline) Run(ctx context.Context, audio []byte) Turn {
	return p.run(ctx, p.log, audio)
}

func (p *Pipeline) run(ctx context.Context, log logrus.FieldLogger, audio []byte) Turn {
	start := time.Now()

	if len(audio) == 0 {
		log.Warn("no audio received for utterance")
		turn := Turn{
			NoAudio: true,
			Result: PipelineResult{
				UserText: NoAudioTranscript,
				BotText:  NoAudioReply,
				Emotion:  emotion.Neutral,
				Audio:    p.synthesize(ctx, log, NoAudioReply),
			},
		}
		p.obs.TurnCompleted(turnNoAudio, time.Since(start))
		return turn
	}

	u := Utterance{Audio: audio}

	var g errgroup.Group
	g.Go(func() error {
		u.Transcript = p.transcribe(ctx, log, audio)
		return nil
	})
	g.Go(func() error {
		u.Tone = p.tone(ctx, log, audio)
		return nil
	})
	_ = g.Wait()
	log.WithField("transcript", u.Transcript).Info("utterance transcribed")

	u.Emotions = p.classify(ctx, log, u.Transcript)
	reply := p.generate(ctx, log, u)

	turn := Turn{
		Utterance: u,
		Result: PipelineResult{
			UserText: u.Transcript,
			BotText:  reply,
			Emotion:  u.Emotions.Display(),
			Audio:    p.synthesize(ctx, log, reply),
		},
	}
	p.obs.TurnCompleted(turnSpeech, time.Since(start))
	return turn
}

func (p *Pipeline) transcribe(ctx context.Context, log logrus.FieldLogger, audio []byte) string {
	text, err := runStage(ctx, p, log, StageTranscribe, p.timeouts.Transcribe, func(ctx context.Context) (string, error) {
		if p.ports.Transcriber == nil {
			return "", errNoPort
		}
		return p.ports.Transcriber.Transcribe(ctx, audio)
	})
	if err != nil {
		p.obs.Fallback(StageTranscribe)
		return ""
	}
	return text
}

func (p *Pipeline) tone(ctx context.Context, log logrus.FieldLogger, audio []byte) *float64 {
	if p.ports.Tone == nil {
		return nil
	}
	hz, err := runStage(ctx, p, log, StageTone, 0, func(context.Context) (*float64, error) {
		if hz, ok := p.ports.Tone.EstimateTone(audio); ok {
			return &hz, nil
		}
		return nil, nil
	})
	if err != nil || hz == nil {
		log.Debug("no discernible pitch")
		return nil
	}
	log.WithField("tone_hz", fmt.Sprintf("%.2f", *hz)).Debug("tone estimated")
	return hz
}

func (p *Pipeline) classify(ctx context.Context, log logrus.FieldLogger, text string) emotion.Result {
	res, err := runStage(ctx, p, log, StageClassify, p.timeouts.Classify, func(ctx context.Context) (emotion.Result, error) {
		if p.ports.Emotion == nil {
			return emotion.Result{}, errNoPort
		}
		return p.ports.Emotion.ClassifyEmotion(ctx, text)
	})
	if err != nil {
		p.obs.Fallback(StageClassify)
		return emotion.Result{}
	}
	log.WithFields(logrus.Fields{
		"general":  res.General,
		"detailed": res.Detailed,
	}).Debug("emotions detected")
	return res
}

func (p *Pipeline) generate(ctx context.Context, log logrus.FieldLogger, u Utterance) string {
	reply, err := runStage(ctx, p, log, StageGenerate, p.timeouts.Generate, func(ctx context.Context) (string, error) {
		if p.ports.Responder == nil {
			return "", responder.ErrNotConfigured
		}
		reply, err := p.ports.Responder.GenerateReply(ctx, responder.Request{
			Text:     u.Transcript,
			General:  u.Emotions.General,
			Detailed: u.Emotions.Detailed,
			Tone:     u.Tone,
		})
		if err == nil && strings.TrimSpace(reply) == "" {
			err = errEmptyReply
		}
		return reply, err
	})
	switch {
	case errors.Is(err, responder.ErrNotConfigured):
		p.obs.Fallback(StageGenerate)
		return NotConfiguredReply
	case err != nil:
		p.obs.Fallback(StageGenerate)
		return ApologyReply
	}
	return reply
}

func (p *Pipeline) synthesize(ctx context.Context, log logrus.FieldLogger, text string) []byte {
	out, err := runStage(ctx, p, log, StageSynthesize, p.timeouts.Synthesize, func(ctx context.Context) ([]byte, error) {
		if p.ports.Synthesizer == nil {
			return nil, errNoPort
		}
		return p.ports.Synthesizer.Synthesize(ctx, text)
	})
	if err != nil || len(out) == 0 {
		p.obs.Fallback(StageSynthesize)
		return []byte{}
	}
	return out
}

var (
	errNoPort     = errors.New("port not configured")
	errEmptyReply = errors.New("empty reply")
)

type stageResult[T any] struct {
	val T
	err error
}

// runStage calls fn under the stage timeout. A port that ignores its context
// is abandoned when the timeout fires; panics become errors.
func runStage[T any](ctx context.Context, p *Pipeline, log logrus.FieldLogger, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageResult[T]{err: fmt.Errorf("%s panicked: %v", name, r)}
			}
		}()
		v, err := fn(ctx)
		done <- stageResult[T]{val: v, err: err}
	}()

	var r stageResult[T]
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = fmt.Errorf("%s: %w", name, ctx.Err())
	}

	elapsed := time.Since(start)
	p.obs.StageDone(name, elapsed, r.err)
	if r.err != nil {
		log.WithFields(logrus.Fields{
			"stage":    name,
			"duration": elapsed,
		}).WithError(r.err).Warn("stage failed, using fallback")
		var zero T
		return zero, r.err
	}
	return r.val, nil
}
