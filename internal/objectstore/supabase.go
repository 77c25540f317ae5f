package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config parameterizes the Supabase Storage client.
type Config struct {
	URL        string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

// SupabaseStore uploads blobs to a Supabase Storage bucket and issues public
// URLs for them.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewSupabase constructs a SupabaseStore.
func NewSupabase(cfg Config) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("storage url is required")
	}
	if cfg.ServiceKey == "" {
		return nil, errors.New("storage service key is required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "audio"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &SupabaseStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		bucket:     bucket,
		timeout:    timeout,
		httpClient: &http.Client{},
	}, nil
}

// Put uploads data under path and returns its public URL. Upserts are
// disabled so concurrent uploads to distinct paths never collide and a
// repeated path fails loudly instead of overwriting.
func (s *SupabaseStore) Put(ctx context.Context, data []byte, contentType, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Bucket: s.bucket, Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &UploadError{
			Bucket:  s.bucket,
			Path:    path,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(snippet)),
		}
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path), nil
}
