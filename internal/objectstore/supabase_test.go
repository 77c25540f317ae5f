package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupabasePutSuccess(t *testing.T) {
	var gotPath, gotAuth, gotContentType, gotUpsert string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store, err := NewSupabase(Config{URL: srv.URL, ServiceKey: "svc-key"})
	require.NoError(t, err)

	url, err := store.Put(context.Background(), []byte("mp3-bytes"), "audio/mpeg", "instructions/abc.mp3")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/public/audio/instructions/abc.mp3", url)

	require.Equal(t, "/storage/v1/object/audio/instructions/abc.mp3", gotPath)
	require.Equal(t, "Bearer svc-key", gotAuth)
	require.Equal(t, "audio/mpeg", gotContentType)
	require.Equal(t, "false", gotUpsert)
	require.Equal(t, []byte("mp3-bytes"), gotBody)
}

func TestSupabasePutCustomBucket(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	t.Cleanup(srv.Close)

	store, err := NewSupabase(Config{URL: srv.URL, ServiceKey: "svc-key", Bucket: "narration"})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), []byte("x"), "audio/mpeg", "a.mp3")
	require.NoError(t, err)
	require.Equal(t, "/storage/v1/object/narration/a.mp3", gotPath)
}

func TestSupabasePutFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Duplicate"}`, http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	store, err := NewSupabase(Config{URL: srv.URL, ServiceKey: "svc-key"})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), []byte("x"), "audio/mpeg", "a.mp3")
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	require.Equal(t, http.StatusConflict, uploadErr.Status)
	require.Equal(t, "audio", uploadErr.Bucket)
	require.Equal(t, "a.mp3", uploadErr.Path)
}

func TestNewSupabaseValidation(t *testing.T) {
	_, err := NewSupabase(Config{ServiceKey: "k"})
	require.Error(t, err)

	_, err = NewSupabase(Config{URL: "https://example.supabase.co"})
	require.Error(t, err)
}
