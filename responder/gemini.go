// Package responder generates the empathetic reply with Gemini.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
)

var ErrNotConfigured = errors.New("responder: gemini api key not configured")

// Request is everything the reply is conditioned on.
type Request struct {
	Text     string
	General  []string
	Detailed []string
	Tone     *float64
}

// Generator sends one prompt to a model and returns its text.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type genaiGenerator struct{ client *genai.Client }

func (g genaiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

type Gemini struct {
	gen   Generator
	model string
	log   logrus.FieldLogger
}

// NewGemini builds the responder. Without an API key it still returns a
// usable value whose GenerateReply fails with ErrNotConfigured.
func NewGemini(ctx context.Context, c cfg.Gemini, log logrus.FieldLogger) (*Gemini, error) {
	g := &Gemini{model: c.Model, log: log}
	if c.APIKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.gen = genaiGenerator{client: client}
	return g, nil
}

func NewWithGenerator(gen Generator, model string, log logrus.FieldLogger) *Gemini {
	return &Gemini{gen: gen, model: model, log: log}
}

func (g *Gemini) Configured() bool { return g.gen != nil }

func (g *Gemini) GenerateReply(ctx context.Context, req Request) (string, error) {
	if g.gen == nil {
		return "", ErrNotConfigured
	}
	g.log.WithField("model", g.model).Debug("sending prompt to gemini")
	text, err := g.gen.Generate(ctx, g.model, BuildPrompt(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}
