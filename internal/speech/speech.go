// Package speech implements the narration-synthesis gateway. Exactly one
// provider variant is active per process, selected by configuration; adding a
// provider means adding a variant here, callers never branch on names.
package speech

import (
	"errors"
	"fmt"
	"time"

	"example.com/workouts/internal/domain"
)

// ErrorKind classifies provider-side synthesis failures.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindQuota        ErrorKind = "quota"
	KindInvalidVoice ErrorKind = "invalid-voice"
)

// Error reports a provider-side synthesis failure. Distinct from ErrTimeout,
// which signals the bounded per-call deadline was exceeded.
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s synthesis failed (%s): %s", e.Provider, e.Kind, e.Message)
}

// ErrTimeout is returned when a synthesis call exceeds its deadline.
var ErrTimeout = errors.New("synthesis deadline exceeded")

// Config selects and parameterizes the active provider.
type Config struct {
	Provider      string
	APIKey        string
	BaseURL       string
	DefaultVoice  string
	Timeout       time.Duration
	MaxInputChars int
}

// New returns the configured provider variant. An empty provider name selects
// the built-in default.
func New(cfg Config) (domain.SpeechGateway, error) {
	switch cfg.Provider {
	case "", ProviderElevenLabs:
		return NewElevenLabs(cfg)
	default:
		return nil, fmt.Errorf("unsupported speech provider: %q", cfg.Provider)
	}
}
