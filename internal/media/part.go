package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// 20 MiB, the inline payload ceiling the Gemini API documents. Fetched
// bytes above this are staged through the Files API instead.
const defaultInlineLimit = 20 * 1024 * 1024

// ErrSizeLimitExceeded marks a size violation that must abort the whole
// request. Unlike every other per-source failure it is never converted
// into a silent skip: dropping media the caller explicitly asked about
// would be more surprising than failing.
var ErrSizeLimitExceeded = errors.New("media size limit exceeded")

// PartBuilder turns one Source into a request part: inline bytes for
// small payloads, a file reference for staged uploads and streaming URLs.
type PartBuilder struct {
	resolver    *PathResolver
	fetcher     Fetcher
	stager      *Stager
	inlineLimit int64
	tempDir     string
}

// Build resolves one source into a part. A nil part with a nil error
// means the source was skipped and the reason logged. The only build
// error that propagates is ErrSizeLimitExceeded and staging failures;
// everything else is a per-source skip.
func (b *PartBuilder) Build(ctx context.Context, src Source, index int) (*genai.Part, error) {
	switch s := src.(type) {
	case StreamSource:
		return b.buildStream(s), nil
	case URLSource:
		return b.buildURL(ctx, s, index)
	case LocalSource:
		return b.buildLocal(ctx, s, index)
	case InlineSource:
		return b.buildInline(s, index)
	default:
		log.Printf("source %d: unknown source variant %T, skipping", index, src)
		return nil, nil
	}
}

// buildStream never touches the fetcher or the filesystem: the service
// resolves the URL itself.
func (b *PartBuilder) buildStream(s StreamSource) *genai.Part {
	return &genai.Part{FileData: &genai.FileData{
		FileURI:  s.URL,
		MIMEType: wildcardMIME(KindVideo),
	}}
}

func (b *PartBuilder) buildURL(ctx context.Context, s URLSource, index int) (*genai.Part, error) {
	res, err := b.fetcher.Fetch(ctx, s.URL)
	if err != nil {
		log.Printf("source %d: %v, skipping", index, err)
		return nil, nil
	}

	mt, err := validateMIME(resolveMIME(typeHints{
		serverType: res.ContentType,
		name:       s.URL,
		payload:    res.Data,
	}, s.MediaKind), s.MediaKind)
	if err != nil {
		log.Printf("source %d (%s): %v, skipping", index, s.URL, err)
		return nil, nil
	}

	if int64(len(res.Data)) > b.limit() {
		file, err := b.stageBytes(ctx, res.Data, mt)
		if err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", index, s.URL, err)
		}
		return filePart(file, mt), nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mt, Data: res.Data}}, nil
}

// buildLocal always stages through the Files API so arbitrarily large
// local files work; nothing is read into memory here.
func (b *PartBuilder) buildLocal(ctx context.Context, s LocalSource, index int) (*genai.Part, error) {
	abs, err := b.resolver.Resolve(s.Path)
	if err != nil {
		log.Printf("source %d: %v, skipping", index, err)
		return nil, nil
	}

	mt, err := validateMIME(resolveMIME(typeHints{
		declared: s.MIMEType,
		name:     abs,
		file:     abs,
	}, s.MediaKind), s.MediaKind)
	if err != nil {
		log.Printf("source %d (%s): %v, skipping", index, abs, err)
		return nil, nil
	}

	file, err := b.stager.Stage(ctx, abs, mt)
	if err != nil {
		return nil, fmt.Errorf("source %d (%s): %w", index, abs, err)
	}
	return filePart(file, mt), nil
}

func (b *PartBuilder) buildInline(s InlineSource, index int) (*genai.Part, error) {
	data, uriType, err := decodeInline(s.Data)
	if err != nil {
		log.Printf("source %d: %v, skipping", index, err)
		return nil, nil
	}
	if int64(len(data)) > b.limit() {
		return nil, fmt.Errorf("source %d: %w (%d bytes, limit %d)",
			index, ErrSizeLimitExceeded, len(data), b.limit())
	}

	mt, err := validateMIME(resolveMIME(typeHints{
		declared:    s.MIMEType,
		dataURIType: uriType,
		payload:     data,
	}, KindImage), KindImage)
	if err != nil {
		log.Printf("source %d: %v, skipping", index, err)
		return nil, nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mt, Data: data}}, nil
}

// stageBytes spills a fetched payload to a temporary file so the Files
// API can upload it, removing the file once staging settles.
func (b *PartBuilder) stageBytes(ctx context.Context, data []byte, mimeType string) (*genai.File, error) {
	dir := b.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp := filepath.Join(dir, "media_"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return nil, fmt.Errorf("writing staging temp file: %w", err)
	}
	defer os.Remove(tmp)

	return b.stager.Stage(ctx, tmp, mimeType)
}

func (b *PartBuilder) limit() int64 {
	if b.inlineLimit > 0 {
		return b.inlineLimit
	}
	return defaultInlineLimit
}

// decodeInline accepts a raw base64 string or a data: URI and returns the
// decoded bytes plus any type embedded in the URI prefix.
func decodeInline(raw string) (data []byte, uriType string, err error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return nil, "", errors.New("empty inline payload")
	}

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data URI: missing comma")
		}
		meta := payload[len("data:"):comma]
		payload = payload[comma+1:]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("data URI payload is not base64-encoded")
		}
		uriType = strings.TrimSuffix(meta, ";base64")
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
	}
	return data, uriType, nil
}

// filePart wraps a staged handle as a file-reference part, preferring
// the type the staging API reports over the locally resolved one.
func filePart(file *genai.File, mimeType string) *genai.Part {
	if file.MIMEType != "" {
		mimeType = file.MIMEType
	}
	return &genai.Part{FileData: &genai.FileData{FileURI: file.URI, MIMEType: mimeType}}
}
