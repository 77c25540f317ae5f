package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/observability"
)

// ProviderElevenLabs is the name of the built-in default provider.
const ProviderElevenLabs = "elevenlabs"

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID   = "eleven_turbo_v2_5"
	outputFormat     = "mp3_22050_32"
	defaultMaxChars  = 5000
	defaultTimeout   = 30 * time.Second
	audioContentType = "audio/mpeg"
)

// ElevenLabs synthesizes narration through the ElevenLabs HTTP API. One
// synchronous attempt per call, no retries; retry policy belongs to callers.
type ElevenLabs struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	timeout      time.Duration
	maxChars     int
	httpClient   *http.Client
}

// NewElevenLabs constructs the provider from config, applying defaults for
// unset tunables.
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	voice := cfg.DefaultVoice
	if voice == "" {
		voice = defaultVoiceID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxChars := cfg.MaxInputChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	return &ElevenLabs{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultVoice: voice,
		timeout:      timeout,
		maxChars:     maxChars,
		httpClient:   &http.Client{},
	}, nil
}

// Name implements domain.SpeechGateway.
func (e *ElevenLabs) Name() string { return ProviderElevenLabs }

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize converts text to MP3 audio. Empty or oversized text fails before
// any network call. The call is bounded by the configured deadline.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (*domain.SynthesisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if len(text) > e.maxChars {
		return nil, &domain.ValidationError{Field: "text", Reason: fmt.Sprintf("exceeds provider maximum of %d characters", e.maxChars)}
	}

	voice := voiceID
	if voice == "" {
		voice = e.defaultVoice
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: defaultModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", e.baseURL, voice, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", audioContentType)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		observability.ObserveSynthesis(ProviderElevenLabs, time.Since(start), false)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &Error{Provider: ProviderElevenLabs, Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		observability.ObserveSynthesis(ProviderElevenLabs, time.Since(start), false)
		return nil, e.classify(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveSynthesis(ProviderElevenLabs, time.Since(start), false)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &Error{Provider: ProviderElevenLabs, Kind: KindNetwork, Message: err.Error()}
	}

	observability.ObserveSynthesis(ProviderElevenLabs, time.Since(start), true)
	return &domain.SynthesisResult{Audio: audio, ContentType: audioContentType}, nil
}

func (e *ElevenLabs) classify(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	kind := KindNetwork
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
		kind = KindQuota
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		kind = KindInvalidVoice
	}

	return &Error{
		Provider: ProviderElevenLabs,
		Kind:     kind,
		Status:   resp.StatusCode,
		Message:  strings.TrimSpace(string(snippet)),
	}
}
