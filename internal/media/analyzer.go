package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrNoSources rejects an analysis call before any work starts.
	ErrNoSources = errors.New("no media sources provided")

	// ErrNoValidSources means every supplied source was skipped.
	ErrNoValidSources = errors.New("no valid media sources could be processed")

	// ErrSafetyBlocked wraps a content-safety block from the service.
	ErrSafetyBlocked = errors.New("content blocked by safety filters")
)

// ContentGenerator is the slice of the inference API the analyzer needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// Options is the read-only configuration the pipeline consumes. It is
// built once at process start; nothing in the pipeline reads the
// environment at call time.
type Options struct {
	Model           string
	InlineLimit     int64
	FetchTimeout    time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	MediaRoots      []string
	AllowedPaths    []string
}

// Analyzer fans part-building out over all sources of one call, issues a
// single inference request, and extracts the textual result.
type Analyzer struct {
	model   string
	gen     ContentGenerator
	builder *PartBuilder
}

// NewAnalyzer wires the pipeline against a live genai client.
func NewAnalyzer(client *genai.Client, opts Options) *Analyzer {
	return &Analyzer{
		model: opts.Model,
		gen:   &genaiGenerator{client: client},
		builder: &PartBuilder{
			resolver: &PathResolver{
				Roots:        opts.MediaRoots,
				AllowedPaths: opts.AllowedPaths,
			},
			fetcher:     NewHTTPFetcher(opts.FetchTimeout),
			stager:      NewStager(&genaiFileService{client: client}, opts.PollInterval, opts.PollMaxAttempts),
			inlineLimit: opts.InlineLimit,
		},
	}
}

// AnalyzeImages resolves image sources and returns the model's text.
func (a *Analyzer) AnalyzeImages(ctx context.Context, sources []Source, prompt string) (string, error) {
	return a.analyze(ctx, sources, prompt, KindImage)
}

// AnalyzeVideos resolves video sources and returns the model's text.
func (a *Analyzer) AnalyzeVideos(ctx context.Context, sources []Source, prompt string) (string, error) {
	return a.analyze(ctx, sources, prompt, KindVideo)
}

func (a *Analyzer) analyze(ctx context.Context, sources []Source, prompt string, kind Kind) (string, error) {
	if len(sources) == 0 {
		return "", ErrNoSources
	}

	// Fan out: each source's pipeline is independent, failures are
	// collected per slot and never cancel a sibling.
	parts := make([]*genai.Part, len(sources))
	fatals := make([]error, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			parts[i], fatals[i] = a.builder.Build(ctx, src, i)
		}(i, src)
	}
	wg.Wait()

	for _, err := range fatals {
		if err != nil {
			return "", err
		}
	}

	// The prompt is always the first part; the rest keep whatever order
	// the fan-out produced, which the service treats as an unordered
	// evidence set.
	requestParts := []*genai.Part{genai.NewPartFromText(prompt)}
	survived := 0
	for _, p := range parts {
		if p != nil {
			requestParts = append(requestParts, p)
			survived++
		}
	}
	if survived == 0 {
		return "", fmt.Errorf("%w (%d source(s) attempted)", ErrNoValidSources, len(sources))
	}
	log.Printf("analyzing %d of %d %s source(s) with model %s", survived, len(sources), kind, a.model)

	contents := []*genai.Content{
		genai.NewContentFromParts(requestParts, genai.RoleUser),
	}
	resp, err := a.gen.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%s analysis request: %w", kind, err)
	}
	return extractText(resp)
}

// extractText pulls the usable text out of a response. Abnormal finish
// reasons with text still present are tolerated: video analysis often
// finishes abnormally while yielding useful partial output.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from model")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrSafetyBlocked, fb.BlockReason)
	}

	var finish genai.FinishReason
	if len(resp.Candidates) > 0 {
		finish = resp.Candidates[0].FinishReason
	}
	normal := finish == "" || finish == genai.FinishReasonStop

	if text := strings.TrimSpace(resp.Text()); text != "" {
		if !normal {
			log.Printf("analysis finished abnormally (%s), returning partial text", finish)
		}
		return text, nil
	}

	if finish == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", ErrSafetyBlocked, finish)
	}
	if !normal {
		return "", fmt.Errorf("analysis failed with finish reason %s and no text", finish)
	}
	return "", errors.New("model returned empty text")
}

// IsStreamingURL reports whether a URL points at a video-sharing site the
// service resolves itself (never downloaded by this process).
func IsStreamingURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	switch host {
	case "youtube.com", "m.youtube.com", "youtu.be":
		return true
	}
	return false
}
