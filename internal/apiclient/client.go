package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pollwatch/internal/pkg"
)

// Request describes one generic HTTP call: method, split URL, typed
// params/headers and an optional free-form body merged into the params.
type Request struct {
	Method   string
	BaseURL  string
	Endpoint string
	Params   map[string]pkg.Scalar
	Headers  map[string]pkg.Scalar
	Body     map[string]any
}

// Result is the normalized outcome of a successful call. Data holds the
// parsed body when the response was JSON, Text holds it raw otherwise.
type Result struct {
	StatusCode int
	Data       json.RawMessage
	Text       string
}

// Encode renders the result body as JSON for persistence: the parsed
// document when one exists, else the raw text as a JSON string.
func (r *Result) Encode() json.RawMessage {
	if r.Data != nil {
		return r.Data
	}
	encoded, err := json.Marshal(r.Text)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return encoded
}

// Prober performs one HTTP exchange against a configured endpoint. Any
// transport failure or non-2xx status is returned as an error.
type Prober interface {
	Probe(ctx context.Context, req Request) (*Result, error)
}

type client struct {
	httpClient *http.Client
}

// New creates a Prober with the given per-request timeout.
func New(timeout time.Duration) Prober {
	return &client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewWithClient creates a Prober around an existing http.Client.
func NewWithClient(httpClient *http.Client) Prober {
	return &client{httpClient: httpClient}
}

func (c *client) Probe(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request error: %v", pkg.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", pkg.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d: %s",
			pkg.ErrTransport, resp.StatusCode, pkg.TruncatePreview(string(body), 200))
	}

	result := &Result{StatusCode: resp.StatusCode}
	if looksLikeJSON(resp.Header.Get("Content-Type"), body) && json.Valid(body) {
		result.Data = json.RawMessage(body)
	} else {
		result.Text = string(body)
	}
	return result, nil
}

func (c *client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", pkg.ErrInput, req.Method)
	}

	target := strings.TrimRight(req.BaseURL, "/")
	if endpoint := strings.TrimLeft(req.Endpoint, "/"); endpoint != "" {
		target = target + "/" + endpoint
	}

	payload := make(map[string]any, len(req.Params)+len(req.Body))
	for k, v := range req.Params {
		payload[k] = v.Value()
	}
	for k, v := range req.Body {
		payload[k] = v
	}

	var httpReq *http.Request
	if method == http.MethodGet {
		parsed, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid url %q: %v", pkg.ErrInput, target, err)
		}
		query := parsed.Query()
		for k, v := range req.Params {
			query.Set(k, v.Text())
		}
		for k, v := range req.Body {
			query.Set(k, fmt.Sprintf("%v", v))
		}
		parsed.RawQuery = query.Encode()

		httpReq, err = http.NewRequestWithContext(ctx, method, parsed.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: building request: %v", pkg.ErrInput, err)
		}
	} else {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding body: %v", pkg.ErrInput, err)
		}
		httpReq, err = http.NewRequestWithContext(ctx, method, target, bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: building request: %v", pkg.ErrInput, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v.Text())
	}
	return httpReq, nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
