package config_monitor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pollwatch/internal/apiclient"
	"pollwatch/internal/auth"
	"pollwatch/internal/pkg"
	"pollwatch/internal/storage"
)

// ValidationInput carries the full set of configuration fields a caller
// submits. Params and headers arrive as line-oriented "key: value" text,
// extra body as a JSON object string.
type ValidationInput struct {
	OwnerKey        string  `json:"owner_key"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Method          string  `json:"method"`
	BaseURL         string  `json:"base_url"`
	Endpoint        string  `json:"endpoint"`
	ParamLines      string  `json:"param_keys_values"`
	HeaderLines     string  `json:"header_keys_values"`
	ExtraBody       string  `json:"extra_body"`
	IntervalMinutes float64 `json:"interval_minutes"`
	LifetimeHours   float64 `json:"lifetime_hours"`
	StartAt         string  `json:"start_at"`
}

// ValidationResult reports a stored configuration plus the sample response
// from the connectivity probe. The sample may itself encode an application
// error; callers inspect it before activating.
type ValidationResult struct {
	Success         bool            `json:"success"`
	ConfigID        string          `json:"config_id,omitempty"`
	Message         string          `json:"message"`
	SampleResponse  json.RawMessage `json:"sample_response,omitempty"`
	StartAt         time.Time       `json:"start_at"`
	StopAt          time.Time       `json:"stop_at"`
	IntervalMinutes float64         `json:"interval_minutes"`
}

type configMonitorService struct {
	verifier auth.KeyVerifier
	prober   apiclient.Prober
	store    storage.Storer
	logger   *zap.SugaredLogger
}

type ConfigMonitorService interface {
	Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error)
}

func NewConfigMonitorService(
	verifier auth.KeyVerifier,
	prober apiclient.Prober,
	store storage.Storer,
	logger *zap.SugaredLogger,
) ConfigMonitorService {
	return &configMonitorService{
		verifier: verifier,
		prober:   prober,
		store:    store,
		logger:   logger,
	}
}

// Validate checks the proposed configuration, performs exactly one probe as
// a connectivity test and persists the configuration on success. A transport
// failure during the probe stores nothing; a reachable endpoint is stored
// even when its body encodes an application-level error.
func (s *configMonitorService) Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error) {
	now := time.Now()

	if strings.TrimSpace(input.OwnerKey) == "" {
		return nil, fmt.Errorf("%w: owner key is required", pkg.ErrAuth)
	}
	if !s.verifier.VerifyCaller(ctx, input.OwnerKey) {
		return nil, fmt.Errorf("%w: owner key verification failed", pkg.ErrAuth)
	}

	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: monitoring name is required", pkg.ErrInput)
	}
	if strings.TrimSpace(input.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", pkg.ErrInput)
	}
	method := strings.ToUpper(strings.TrimSpace(input.Method))
	switch method {
	case "GET", "POST", "PUT", "DELETE":
	default:
		return nil, fmt.Errorf("%w: valid HTTP method is required (GET, POST, PUT, DELETE)", pkg.ErrInput)
	}

	if input.IntervalMinutes <= 0 || input.IntervalMinutes > 1440 {
		return nil, fmt.Errorf("%w: schedule interval must be between 0 and 1440 minutes", pkg.ErrInput)
	}
	if input.LifetimeHours < 0.1 || input.LifetimeHours > 168 {
		return nil, fmt.Errorf("%w: lifetime must be between 0.1 and 168 hours (1 week max)", pkg.ErrInput)
	}

	startAt, err := pkg.ParseStartTime(input.StartAt, now)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start time format", pkg.ErrInput)
	}
	if startAt.Before(now) && input.StartAt != "" {
		return nil, fmt.Errorf("%w: start time cannot be in the past", pkg.ErrInput)
	}

	extraBody := map[string]any{}
	if strings.TrimSpace(input.ExtraBody) != "" {
		if err := json.Unmarshal([]byte(input.ExtraBody), &extraBody); err != nil {
			return nil, fmt.Errorf("%w: extra body must be a valid JSON object", pkg.ErrInput)
		}
	}

	params := pkg.ParseKeyValues(input.ParamLines)
	headers := pkg.ParseKeyValues(input.HeaderLines)

	// One synchronous probe. Reachable is not the same as correct: the
	// sample response is returned for the caller to inspect before
	// activation.
	sample, err := s.prober.Probe(ctx, apiclient.Request{
		Method:   method,
		BaseURL:  input.BaseURL,
		Endpoint: input.Endpoint,
		Params:   params,
		Headers:  headers,
		Body:     extraBody,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: API call test failed: %v", pkg.ErrTransport, err)
	}

	interval := time.Duration(input.IntervalMinutes * float64(time.Minute))
	stopAt := startAt.Add(time.Duration(input.LifetimeHours * float64(time.Hour)))

	cfg := &pkg.Configuration{
		ID:          generateConfigID(input, now),
		OwnerKey:    input.OwnerKey,
		Name:        input.Name,
		Description: input.Description,
		Method:      method,
		BaseURL:     input.BaseURL,
		Endpoint:    input.Endpoint,
		Params:      params,
		Headers:     headers,
		ExtraBody:   extraBody,
		Interval:    interval,
		StartAt:     startAt,
		StopAt:      stopAt,
		CreatedAt:   now,
		IsActive:    false,
	}

	if err := s.store.InsertConfiguration(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Infow("configuration validated and stored",
		"config_id", cfg.ID,
		"name", cfg.Name,
		"interval", cfg.Interval,
		"stop_at", cfg.StopAt,
	)

	return &ValidationResult{
		Success:         true,
		ConfigID:        cfg.ID,
		Message:         fmt.Sprintf("API call tested and stored successfully for %q", cfg.Name),
		SampleResponse:  sample.Encode(),
		StartAt:         cfg.StartAt,
		StopAt:          cfg.StopAt,
		IntervalMinutes: input.IntervalMinutes,
	}, nil
}

// generateConfigID derives an opaque identifier from a content hash of the
// configuration salted with the submission instant, so identical
// configurations validated at different times never collide.
func generateConfigID(input ValidationInput, now time.Time) string {
	payload, _ := json.Marshal(input)
	payload = append(payload, []byte(strconv.FormatInt(now.UnixNano(), 10))...)
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])[:12]
}
