package media

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"google.golang.org/genai"
)

// countingFetcher serves a canned payload and counts its calls.
type countingFetcher struct {
	result *FetchResult
	err    error
	calls  int
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestBuilder(t *testing.T, fetcher Fetcher, files *fakeFileService, inlineLimit int64) *PartBuilder {
	t.Helper()
	if files == nil {
		files = &fakeFileService{uploadState: genai.FileStateActive}
	}
	return &PartBuilder{
		resolver:    &PathResolver{},
		fetcher:     fetcher,
		stager:      newTestStager(files, 10),
		inlineLimit: inlineLimit,
		tempDir:     t.TempDir(),
	}
}

func TestBuildStreamTouchesNoIO(t *testing.T) {
	fetcher := &countingFetcher{}
	files := &fakeFileService{uploadState: genai.FileStateActive}
	b := newTestBuilder(t, fetcher, files, 0)

	part, err := b.Build(context.Background(), StreamSource{URL: "https://youtu.be/abc123"}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.FileData == nil {
		t.Fatal("expected a file-reference part")
	}
	if part.FileData.FileURI != "https://youtu.be/abc123" {
		t.Errorf("FileURI = %s, want the original URL", part.FileData.FileURI)
	}
	if part.FileData.MIMEType != "video/*" {
		t.Errorf("MIMEType = %s, want video/*", part.FileData.MIMEType)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher calls = %d, want 0", fetcher.calls)
	}
	if files.uploads != 0 {
		t.Errorf("uploads = %d, want 0", files.uploads)
	}
}

func TestBuildURLInlineUnderLimit(t *testing.T) {
	fetcher := &countingFetcher{result: &FetchResult{Data: pngHeader, ContentType: "image/png"}}
	b := newTestBuilder(t, fetcher, nil, 1024)

	part, err := b.Build(context.Background(), URLSource{MediaKind: KindImage, URL: "https://example.com/a.png"}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.InlineData == nil {
		t.Fatal("expected an inline part")
	}
	if part.InlineData.MIMEType != "image/png" {
		t.Errorf("MIMEType = %s, want image/png", part.InlineData.MIMEType)
	}
	if len(part.InlineData.Data) != len(pngHeader) {
		t.Errorf("Data length = %d, want %d", len(part.InlineData.Data), len(pngHeader))
	}
}

func TestBuildURLOverLimitIsStaged(t *testing.T) {
	fetcher := &countingFetcher{result: &FetchResult{Data: pngHeader, ContentType: "image/png"}}
	files := &fakeFileService{uploadState: genai.FileStateActive}
	b := newTestBuilder(t, fetcher, files, 4)

	part, err := b.Build(context.Background(), URLSource{MediaKind: KindImage, URL: "https://example.com/big.png"}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.FileData == nil {
		t.Fatal("expected a file-reference part for an oversized payload")
	}
	if files.uploads != 1 {
		t.Errorf("uploads = %d, want 1", files.uploads)
	}
	// The spilled temp file is removed once staging settles.
	if _, statErr := os.Stat(files.lastPath); !os.IsNotExist(statErr) {
		t.Errorf("temp file %s should be removed after staging", files.lastPath)
	}
}

func TestBuildURLFetchFailureIsSkipped(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("connection refused")}
	b := newTestBuilder(t, fetcher, nil, 0)

	part, err := b.Build(context.Background(), URLSource{MediaKind: KindImage, URL: "https://example.com/a.png"}, 0)
	if err != nil {
		t.Fatalf("fetch failure must be a skip, got error: %v", err)
	}
	if part != nil {
		t.Error("expected nil part for a skipped source")
	}
}

func TestBuildURLCategoryMismatchIsSkipped(t *testing.T) {
	// A video source whose bytes turn out to be an image is skipped.
	fetcher := &countingFetcher{result: &FetchResult{Data: pngHeader, ContentType: "image/png"}}
	b := newTestBuilder(t, fetcher, nil, 0)

	part, err := b.Build(context.Background(), URLSource{MediaKind: KindVideo, URL: "https://example.com/clip"}, 0)
	if err != nil {
		t.Fatalf("category mismatch must be a skip, got error: %v", err)
	}
	if part != nil {
		t.Error("expected nil part for mismatched media category")
	}
}

func TestBuildLocalAlwaysStages(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/photo.png"
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}

	files := &fakeFileService{uploadState: genai.FileStateActive}
	b := newTestBuilder(t, &countingFetcher{}, files, 1024*1024)

	part, err := b.Build(context.Background(), LocalSource{MediaKind: KindImage, Path: path}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.FileData == nil {
		t.Fatal("local sources must produce a file-reference part")
	}
	if files.uploads != 1 {
		t.Errorf("uploads = %d, want 1", files.uploads)
	}
	if files.lastPath != path {
		t.Errorf("staged path = %s, want %s", files.lastPath, path)
	}
	if files.lastMIMEType != "image/png" {
		t.Errorf("staged MIME = %s, want image/png", files.lastMIMEType)
	}
}

func TestBuildLocalMissingFileIsSkipped(t *testing.T) {
	b := newTestBuilder(t, &countingFetcher{}, nil, 0)

	part, err := b.Build(context.Background(), LocalSource{MediaKind: KindImage, Path: "/nonexistent/photo.png"}, 0)
	if err != nil {
		t.Fatalf("missing file must be a skip, got error: %v", err)
	}
	if part != nil {
		t.Error("expected nil part for a skipped source")
	}
}

func TestBuildLocalStagingFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/clip.mp4"
	if err := os.WriteFile(path, []byte("not a real video"), 0644); err != nil {
		t.Fatal(err)
	}

	files := &fakeFileService{uploadErr: errors.New("quota exhausted")}
	b := newTestBuilder(t, &countingFetcher{}, files, 0)

	_, err := b.Build(context.Background(), LocalSource{MediaKind: KindVideo, Path: path, MIMEType: "video/mp4"}, 0)
	if err == nil {
		t.Fatal("staging failure must abort the request")
	}
}

func TestBuildInlineRawBase64(t *testing.T) {
	b := newTestBuilder(t, &countingFetcher{}, nil, 1024)
	payload := base64.StdEncoding.EncodeToString(pngHeader)

	part, err := b.Build(context.Background(), InlineSource{Data: payload}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.InlineData == nil {
		t.Fatal("expected an inline part")
	}
	if part.InlineData.MIMEType != "image/png" {
		t.Errorf("MIMEType = %s, want image/png (sniffed)", part.InlineData.MIMEType)
	}
}

func TestBuildInlineDataURI(t *testing.T) {
	b := newTestBuilder(t, &countingFetcher{}, nil, 1024)
	payload := "data:image/webp;base64," + base64.StdEncoding.EncodeToString(pngHeader)

	part, err := b.Build(context.Background(), InlineSource{Data: payload}, 0)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if part == nil || part.InlineData == nil {
		t.Fatal("expected an inline part")
	}
	// The type embedded in the URI outranks the sniffed one.
	if part.InlineData.MIMEType != "image/webp" {
		t.Errorf("MIMEType = %s, want image/webp", part.InlineData.MIMEType)
	}
}

func TestBuildInlineMalformedIsSkipped(t *testing.T) {
	b := newTestBuilder(t, &countingFetcher{}, nil, 1024)

	for _, bad := range []string{"!!!not-base64!!!", "data:image/png;base64", "data:image/png,plainpayload", ""} {
		part, err := b.Build(context.Background(), InlineSource{Data: bad}, 0)
		if err != nil {
			t.Errorf("Build(%q): malformed inline data must be a skip, got error: %v", bad, err)
		}
		if part != nil {
			t.Errorf("Build(%q): expected nil part", bad)
		}
	}
}

func TestBuildInlineOverLimitIsFatal(t *testing.T) {
	b := newTestBuilder(t, &countingFetcher{}, nil, 4)
	payload := base64.StdEncoding.EncodeToString(pngHeader)

	_, err := b.Build(context.Background(), InlineSource{Data: payload}, 2)
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Fatalf("err = %v, want ErrSizeLimitExceeded", err)
	}
	if !strings.Contains(err.Error(), "source 2") {
		t.Errorf("error should name the offending source index, got: %v", err)
	}
}

func TestDefaultInlineLimit(t *testing.T) {
	b := &PartBuilder{}
	if b.limit() != defaultInlineLimit {
		t.Errorf("limit() = %d, want %d", b.limit(), defaultInlineLimit)
	}
}
