package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/workouts/internal/domain"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, cfg Config) *ElevenLabs {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	provider, err := NewElevenLabs(cfg)
	require.NoError(t, err)
	return provider
}

func TestElevenLabsSynthesizeSuccess(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}, Config{})

	res, err := provider.Synthesize(context.Background(), "Do twelve squats.", "voice-a")
	require.NoError(t, err)
	require.Equal(t, []byte("mp3-bytes"), res.Audio)
	require.Equal(t, "audio/mpeg", res.ContentType)
	require.Nil(t, res.DurationSec)

	require.Equal(t, "/v1/text-to-speech/voice-a?output_format=mp3_22050_32", gotPath)
	require.Equal(t, "test-key", gotKey)
	require.Equal(t, "audio/mpeg", gotAccept)
}

func TestElevenLabsDefaultVoiceApplied(t *testing.T) {
	var gotPath string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("x"))
	}, Config{DefaultVoice: "narrator"})

	_, err := provider.Synthesize(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, "/v1/text-to-speech/narrator", gotPath)
}

func TestElevenLabsRejectsBadInputWithoutCalling(t *testing.T) {
	calls := 0
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	}, Config{MaxInputChars: 10})

	var validationErr *domain.ValidationError

	_, err := provider.Synthesize(context.Background(), "   ", "")
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "text", validationErr.Field)

	_, err = provider.Synthesize(context.Background(), strings.Repeat("a", 11), "")
	require.ErrorAs(t, err, &validationErr)

	require.Zero(t, calls)
}

func TestElevenLabsErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusTooManyRequests, KindQuota},
		{http.StatusUnauthorized, KindQuota},
		{http.StatusNotFound, KindInvalidVoice},
		{http.StatusUnprocessableEntity, KindInvalidVoice},
		{http.StatusBadGateway, KindNetwork},
	}

	for _, tc := range cases {
		provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}, Config{})

		_, err := provider.Synthesize(context.Background(), "hello", "")
		var providerErr *Error
		require.ErrorAs(t, err, &providerErr, "status %d", tc.status)
		require.Equal(t, tc.kind, providerErr.Kind, "status %d", tc.status)
		require.Equal(t, tc.status, providerErr.Status)
	}
}

func TestElevenLabsTimeout(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	_, err := provider.Synthesize(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := NewElevenLabs(Config{})
	require.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "espeak", APIKey: "k"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrTimeout))
}
