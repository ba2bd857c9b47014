package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// KeyVerifier confirms that a caller-supplied owner key is valid. The check
// fails closed: any ambiguity (network error, unexpected status) counts as
// a failed verification.
type KeyVerifier interface {
	VerifyCaller(ctx context.Context, ownerKey string) bool
}

type httpVerifier struct {
	verifyURL  string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewHTTPVerifier verifies keys against an external identity service that
// answers 200 for a valid key.
func NewHTTPVerifier(verifyURL string, timeout time.Duration, logger *zap.SugaredLogger) KeyVerifier {
	return &httpVerifier{
		verifyURL: verifyURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (v *httpVerifier) VerifyCaller(ctx context.Context, ownerKey string) bool {
	if ownerKey == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{"key": ownerKey})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		v.logger.Warnf("building verify request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warnf("key verification unreachable: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

type staticVerifier struct {
	keys map[string]struct{}
}

// NewStaticVerifier accepts exactly the given keys. An empty list accepts
// any non-empty key; useful for local runs without an identity service.
func NewStaticVerifier(keys []string) KeyVerifier {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &staticVerifier{keys: set}
}

func (v *staticVerifier) VerifyCaller(_ context.Context, ownerKey string) bool {
	if ownerKey == "" {
		return false
	}
	if len(v.keys) == 0 {
		return true
	}
	_, ok := v.keys[ownerKey]
	return ok
}
