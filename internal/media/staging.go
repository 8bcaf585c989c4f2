package media

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	defaultPollInterval    = 2 * time.Second
	maxPollInterval        = 60 * time.Second
	defaultPollMaxAttempts = 60
)

// FileService is the slice of the Gemini Files API the stager needs.
type FileService interface {
	// Upload stages the file at path and returns the initial handle.
	Upload(ctx context.Context, path, mimeType string) (*genai.File, error)
	// Status re-fetches a staged file's state by name.
	Status(ctx context.Context, name string) (*genai.File, error)
}

type genaiFileService struct {
	client *genai.Client
}

func (s *genaiFileService) Upload(ctx context.Context, path, mimeType string) (*genai.File, error) {
	return s.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
}

func (s *genaiFileService) Status(ctx context.Context, name string) (*genai.File, error) {
	return s.client.Files.Get(ctx, name, nil)
}

// Stager hands bytes to the file-staging API and polls the staged object
// until it activates, fails, or the attempt budget runs out.
type Stager struct {
	files       FileService
	interval    time.Duration
	maxAttempts int

	// sleep is injectable so tests can run the poll loop without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewStager(files FileService, interval time.Duration, maxAttempts int) *Stager {
	if interval < 0 {
		interval = 0
	}
	if interval > maxPollInterval {
		interval = maxPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultPollMaxAttempts
	}
	return &Stager{
		files:       files,
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       contextSleep,
	}
}

// Stage uploads the file at path and waits for the staged object to
// become usable. The returned handle carries the URI and MIME type for a
// file-reference part.
func (s *Stager) Stage(ctx context.Context, path, mimeType string) (*genai.File, error) {
	file, err := s.files.Upload(ctx, path, mimeType)
	if err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	return s.waitActive(ctx, file)
}

// waitActive is the PENDING -> {ACTIVE | FAILED} state machine. Anything
// that is neither ACTIVE nor FAILED counts as still processing and keeps
// the loop going until the attempt budget is spent.
func (s *Stager) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	for attempt := 0; ; attempt++ {
		switch file.State {
		case genai.FileStateActive:
			return file, nil
		case genai.FileStateFailed:
			detail := "file processing failed"
			if file.Error != nil && file.Error.Message != "" {
				detail = file.Error.Message
			}
			return nil, fmt.Errorf("staged file %s failed: %s", file.Name, detail)
		}

		if attempt >= s.maxAttempts {
			return nil, fmt.Errorf("staged file %s did not activate after %d attempts (last state %s)",
				file.Name, s.maxAttempts, file.State)
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			return nil, err
		}

		refreshed, err := s.files.Status(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("staging status for %s: %w", file.Name, err)
		}
		file = refreshed
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
