package media

// Kind is the top-level category a source must resolve to.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Source describes one media item supplied by a caller. The set of
// implementations is closed: the unexported marker method keeps foreign
// types out, so the dispatch switch in PartBuilder.Build covers every
// variant that can exist.
type Source interface {
	// Kind returns the category the source's resolved MIME type must match.
	Kind() Kind
	// Describe returns a short identifier for log messages.
	Describe() string

	isSource()
}

// URLSource references media by a remote URL whose bytes are downloaded
// before being sent to the model.
type URLSource struct {
	MediaKind Kind
	URL       string
}

// LocalSource references media on the local filesystem. MIMEType is an
// optional caller-declared hint that wins over every other detection step.
type LocalSource struct {
	MediaKind Kind
	Path      string
	MIMEType  string
}

// InlineSource carries the payload directly, either as raw base64 or as a
// data: URI. Images only.
type InlineSource struct {
	Data     string
	MIMEType string
}

// StreamSource references a video-sharing URL (e.g. YouTube) that the
// inference service resolves itself. It is never downloaded.
type StreamSource struct {
	URL string
}

func (s URLSource) Kind() Kind       { return s.MediaKind }
func (s URLSource) Describe() string { return s.URL }
func (URLSource) isSource()          {}

func (s LocalSource) Kind() Kind       { return s.MediaKind }
func (s LocalSource) Describe() string { return s.Path }
func (LocalSource) isSource()          {}

func (InlineSource) Kind() Kind       { return KindImage }
func (InlineSource) Describe() string { return "inline data" }
func (InlineSource) isSource()        {}

func (StreamSource) Kind() Kind         { return KindVideo }
func (s StreamSource) Describe() string { return s.URL }
func (StreamSource) isSource()          {}
