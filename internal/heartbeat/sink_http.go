package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnexpectedStatus = errors.New("unexpected control plane status")

const nodeKeyHeader = "X-Node-Key"

// HTTPSink posts heartbeats to {base}/nodes/{node_id}/heartbeat.
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSink(controlPlaneURL, nodeID, apiKey string, timeout time.Duration) (*HTTPSink, error) {
	base, err := url.Parse(strings.TrimRight(controlPlaneURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("control plane url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("control plane url: unsupported scheme %q", base.Scheme)
	}
	if nodeID == "" {
		return nil, errors.New("node id is required")
	}
	return &HTTPSink{
		endpoint: base.JoinPath("nodes", nodeID, "heartbeat").String(),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSink) Endpoint() string { return s.endpoint }

func (s *HTTPSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set(nodeKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post heartbeat: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
