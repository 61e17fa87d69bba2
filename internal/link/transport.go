package link

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StatusTransportError is returned in place of an HTTP status when the
// request never completed.
const StatusTransportError = -1

const maxLoggedBody = 256

// Transport POSTs one payload and reports the status and response body.
type Transport interface {
	Post(ctx context.Context, url string, payload []byte) (int, string)
}

// HTTPTransport delivers records as JSON over HTTP.
type HTTPTransport struct {
	Client *http.Client
	Log    *slog.Logger
}

// NewHTTPTransport returns a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration, log *slog.Logger) *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}, Log: log}
}

func (t *HTTPTransport) Post(ctx context.Context, url string, payload []byte) (int, string) {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Error("build request", "error", err)
		return StatusTransportError, ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Warn("post failed", "url", url, "error", err)
		return StatusTransportError, ""
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := SanitizeBody(string(b))
	log.Debug("post response", "status", resp.StatusCode, "body", body)
	return resp.StatusCode, body
}

// Delivered reports whether status counts as a successful delivery.
func Delivered(status int) bool { return status == http.StatusOK }

// SanitizeBody strips newlines and truncates a response body for logging.
func SanitizeBody(s string) string {
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	if len(s) > maxLoggedBody {
		s = s[:maxLoggedBody]
	}
	return s
}
