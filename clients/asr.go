package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

var ErrASRNotConfigured = errors.New("asr: service url not configured")

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
type ASRResp struct {
	Text     string     `json:"text"`
	Segments []TransSeg `json:"segments"`
	Language string     `json:"language"`
}

// ASR uploads one utterance as a multipart "file" field to <url>/transcribe.
func (h *HTTP) ASR(ctx context.Context, url, filename string, audio []byte) (*ASRResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err = fw.Write(audio); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/transcribe", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("asr %s: %s", resp.Status, string(body))
	}

	var out ASRResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("asr decode: %w", err)
	}
	return &out, nil
}

// Transcriber turns utterance audio into trimmed text via the ASR service.
type Transcriber struct {
	HTTP *HTTP
	URL  string
}

func (t Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if t.URL == "" {
		return "", ErrASRNotConfigured
	}
	resp, err := t.HTTP.ASR(ctx, t.URL, "utterance.wav", audio)
	if err != nil {
		return "", err
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text, nil
	}
	parts := make([]string, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		if p := strings.TrimSpace(s.Text); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " "), nil
}
