package rpcclient

import (
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// HTTPConfig configures the JSON-RPC over HTTP client.
type HTTPConfig struct {
	// Endpoint is the URL every procedure call is posted to.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of extra attempts for queries failing with a transient error.
	// Mutations are never retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseWait is the first backoff delay; it doubles on every retry.
	RetryBaseWait time.Duration `yaml:"retry_base_wait"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	HTTPClient *http.Client `yaml:"-"`
	Logger     *slog.Logger `yaml:"-"`
}

// DefaultHTTPConfig returns an HTTPConfig populated with sensible defaults.
// Endpoint has no default.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		RetryBaseWait: 100 * time.Millisecond,
	}
}

// Validate checks whether the configuration values are valid.
func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.RetryBaseWait, validation.Min(time.Duration(0))),
	)
}
