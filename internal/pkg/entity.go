package pkg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ScalarKind tags the parsed type of a key:value input line.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarInteger
	ScalarBoolean
)

// Scalar is one typed value parsed from the line-oriented key:value input.
// Params and headers carry these so that "limit: 10" reaches the remote API
// as a number and "active: true" as a boolean.
type Scalar struct {
	Kind ScalarKind
	Str  string
	Int  int64
	Bool bool
}

func StringScalar(s string) Scalar { return Scalar{Kind: ScalarString, Str: s} }
func IntegerScalar(i int64) Scalar { return Scalar{Kind: ScalarInteger, Int: i} }
func BooleanScalar(b bool) Scalar  { return Scalar{Kind: ScalarBoolean, Bool: b} }

// Value returns the underlying dynamic value.
func (s Scalar) Value() any {
	switch s.Kind {
	case ScalarInteger:
		return s.Int
	case ScalarBoolean:
		return s.Bool
	default:
		return s.Str
	}
}

// Text renders the scalar the way it appears in a URL query string.
func (s Scalar) Text() string {
	switch s.Kind {
	case ScalarInteger:
		return strconv.FormatInt(s.Int, 10)
	case ScalarBoolean:
		return strconv.FormatBool(s.Bool)
	default:
		return s.Str
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value())
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*s = BooleanScalar(t)
	case float64:
		if t == float64(int64(t)) {
			*s = IntegerScalar(int64(t))
			return nil
		}
		*s = StringScalar(strconv.FormatFloat(t, 'f', -1, 64))
	case string:
		*s = StringScalar(t)
	case nil:
		*s = StringScalar("")
	default:
		return fmt.Errorf("unsupported scalar value %v", v)
	}
	return nil
}

// Configuration is one stored, validated intent to poll an HTTP endpoint
// on a schedule.
type Configuration struct {
	ID          string            `json:"config_id"`
	OwnerKey    string            `json:"-"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Method      string            `json:"method"`
	BaseURL     string            `json:"base_url"`
	Endpoint    string            `json:"endpoint"`
	Params      map[string]Scalar `json:"params,omitempty"`
	Headers     map[string]Scalar `json:"headers,omitempty"`
	ExtraBody   map[string]any    `json:"extra_body,omitempty"`
	Interval    time.Duration     `json:"interval"`
	StartAt     time.Time         `json:"start_at"`
	StopAt      time.Time         `json:"stop_at"`
	CreatedAt   time.Time         `json:"created_at"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
	IsActive    bool              `json:"is_active"`
}

// IsFinished reports whether the monitoring window has closed.
func (c *Configuration) IsFinished(now time.Time) bool {
	return now.After(c.StopAt)
}

// CallResult is the persisted outcome of one scheduled probe tick.
// Exactly one of ResponseData and ErrorMessage is populated.
type CallResult struct {
	ID           string          `json:"id"`
	ConfigID     string          `json:"config_id"`
	CalledAt     time.Time       `json:"called_at"`
	IsSuccessful bool            `json:"is_successful"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
