package main

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"gemini-media-mcp/internal/media"
	"gemini-media-mcp/internal/storage"
)

// stubFetcher stands in for the HTTP client during upload tests.
type stubFetcher struct {
	res     *media.FetchResult
	err     error
	calls   int
	lastURL string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*media.FetchResult, error) {
	f.calls++
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func newTestServer(t *testing.T, fetcher media.Fetcher) *Server {
	t.Helper()
	stor, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &Server{storage: stor, fetcher: fetcher}
}

func TestHandleUploadMediaFromURL(t *testing.T) {
	payload := []byte("fake png bytes")
	fetcher := &stubFetcher{res: &media.FetchResult{Data: payload, ContentType: "image/png"}}
	s := newTestServer(t, fetcher)

	_, out, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{
		URL:      "https://example.com/photo.png",
		MIMEType: "image/png",
	})
	if err != nil {
		t.Fatalf("handleUploadMedia error: %v", err)
	}
	if fetcher.calls != 1 || fetcher.lastURL != "https://example.com/photo.png" {
		t.Errorf("fetcher calls = %d lastURL = %s", fetcher.calls, fetcher.lastURL)
	}
	if out.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", out.Size, len(payload))
	}
	if !strings.HasPrefix(out.ObjectKey, "upload_") {
		t.Errorf("ObjectKey = %s, want upload_ prefix", out.ObjectKey)
	}
}

func TestHandleUploadMediaFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("unexpected status 502")}
	s := newTestServer(t, fetcher)

	_, _, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{
		URL:      "https://example.com/gone.png",
		MIMEType: "image/png",
	})
	if err == nil {
		t.Fatal("expected download failure to propagate")
	}
}

func TestHandleUploadMediaFromData(t *testing.T) {
	fetcher := &stubFetcher{}
	s := newTestServer(t, fetcher)

	_, out, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{
		Data:     base64.StdEncoding.EncodeToString([]byte("inline bytes")),
		MIMEType: "image/png",
		Prefix:   "shot",
	})
	if err != nil {
		t.Fatalf("handleUploadMedia error: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher calls = %d, want 0 for inline data", fetcher.calls)
	}
	if !strings.HasPrefix(out.ObjectKey, "shot_") {
		t.Errorf("ObjectKey = %s, want shot_ prefix", out.ObjectKey)
	}
}

func TestHandleUploadMediaValidation(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})

	if _, _, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{MIMEType: "image/png"}); err == nil {
		t.Error("expected error when neither data nor url is set")
	}
	if _, _, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{Data: "aGk="}); err == nil {
		t.Error("expected error when mime_type is missing")
	}
	if _, _, err := s.handleUploadMedia(context.Background(), nil, UploadMediaInput{Data: "!!!", MIMEType: "image/png"}); err == nil {
		t.Error("expected error for malformed base64 data")
	}
}

func TestResolveObjectKey(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})

	// Stored keys resolve to a readable path.
	result, err := s.storage.Store(context.Background(), []byte("bytes"), "image/png", "upload")
	if err != nil {
		t.Fatal(err)
	}
	path, cleanup := s.resolveObjectKey(context.Background(), result.ObjectKey)
	if cleanup != nil {
		defer cleanup()
	}
	if path == result.ObjectKey {
		t.Errorf("stored key should resolve to a local path, got %s", path)
	}

	// Path-shaped inputs bypass storage entirely.
	for _, in := range []string{"/abs/photo.png", "~/photo.png", "$HOME/photo.png", "file:///abs/photo.png"} {
		if got, _ := s.resolveObjectKey(context.Background(), in); got != in {
			t.Errorf("resolveObjectKey(%s) = %s, want passthrough", in, got)
		}
	}

	// Unknown keys fall back to the raw input for path resolution.
	if got, _ := s.resolveObjectKey(context.Background(), "not-a-key.png"); got != "not-a-key.png" {
		t.Errorf("resolveObjectKey fallback = %s", got)
	}
}
