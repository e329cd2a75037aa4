// Package opensearch indexes lifecycle events as OpenSearch (or
// Elasticsearch) documents.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loykin/localcompose/internal/history"
)

const requestTimeout = 5 * time.Second

// document is the indexed shape. @timestamp lets dashboards pick the time
// field without a mapping.
type document struct {
	Timestamp  time.Time `json:"@timestamp"`
	Event      string    `json:"event"`
	Service    string    `json:"service"`
	PID        int       `json:"pid,omitempty"`
	ReturnCode *int      `json:"return_code,omitempty"`
	Host       string    `json:"host,omitempty"`
}

// Sink posts one document per event to <base>/<index>/_doc.
type Sink struct {
	client *http.Client
	url    string
	host   string
}

func New(baseURL, index string) *Sink {
	host, _ := os.Hostname()
	return &Sink{
		client: &http.Client{Timeout: requestTimeout},
		url:    strings.TrimRight(baseURL, "/") + "/" + strings.Trim(index, "/") + "/_doc",
		host:   host,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(document{
		Timestamp:  e.OccurredAt.UTC(),
		Event:      string(e.Type),
		Service:    e.Service,
		PID:        e.PID,
		ReturnCode: e.ReturnCode,
		Host:       s.host,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index %s event for %s: %w", e.Type, e.Service, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
