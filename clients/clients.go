package clients

import (
	"net/http"
	"time"
)

// HTTP talks to the remote model services (ASR, emotion scoring).
type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

func NewHTTPWithClient(c *http.Client) *HTTP {
	if c == nil {
		return NewHTTP()
	}
	return &HTTP{c: c}
}
