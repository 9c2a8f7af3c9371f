package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
)

const (
	googleTTSEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

	// spoken when asked to synthesize nothing
	emptyReplyText = "I have no response to generate audio for."
)

// GoogleTTS synthesizes replies with Cloud Text-to-Speech and returns WAV
// (LINEAR16) bytes.
type GoogleTTS struct {
	httpClient   *http.Client
	endpoint     string
	accessToken  string
	projectID    string
	languageCode string
	voiceName    string
	sampleRate   int
}

func NewGoogleTTS(c cfg.TTS) (*GoogleTTS, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("tts.access_token not set")
	}
	if c.ProjectID == "" {
		return nil, fmt.Errorf("tts.project_id not set")
	}
	return &GoogleTTS{
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		endpoint:     googleTTSEndpoint,
		accessToken:  c.AccessToken,
		projectID:    c.ProjectID,
		languageCode: c.LanguageCode,
		voiceName:    c.VoiceName,
		sampleRate:   c.SampleRate,
	}, nil
}

// WithEndpoint points the client at a different synthesize URL.
func (c *GoogleTTS) WithEndpoint(url string, hc *http.Client) *GoogleTTS {
	c.endpoint = url
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

func (c *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		text = emptyReplyText
	}

	body := map[string]any{
		"input": map[string]string{
			"text": text,
		},
		"voice": map[string]string{
			"languageCode": c.languageCode,
			"name":         c.voiceName,
		},
		"audioConfig": map[string]any{
			"audioEncoding":   "LINEAR16",
			"sampleRateHertz": c.sampleRate,
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-user-project", c.projectID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts non 200: %d, body=%s", resp.StatusCode, string(b))
	}

	var respBody struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}
	if respBody.AudioContent == "" {
		return nil, fmt.Errorf("empty audioContent in tts response")
	}

	audio, err := base64.StdEncoding.DecodeString(respBody.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audioContent: %w", err)
	}
	return audio, nil
}

// SilentTTS stands in when no synthesis backend is configured; every call
// fails with Reason so the reply goes out as text only.
type SilentTTS struct{ Reason error }

func (s SilentTTS) Synthesize(context.Context, string) ([]byte, error) {
	if s.Reason == nil {
		return nil, fmt.Errorf("tts not configured")
	}
	return nil, s.Reason
}
