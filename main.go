package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gemini-media-mcp/internal/common"
	"gemini-media-mcp/internal/media"
	"gemini-media-mcp/internal/middleware"
	"gemini-media-mcp/internal/storage"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"
)

var (
	transport   = flag.String("transport", "", "Transport type (stdio, http, or sse)")
	showVersion = flag.Bool("version", false, "Show version information")
)

// Version information - these will be set during build
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const (
	serviceName = "gemini-media-mcp"

	defaultImagePrompt = "Describe this image in detail."
	defaultVideoPrompt = "Describe this video in detail."
)

type Server struct {
	config   *common.Config
	analyzer *media.Analyzer
	storage  storage.Storage
	fetcher  media.Fetcher
}

// Input types for tools
type MediaSourceInput struct {
	URL      string `json:"url,omitempty" jsonschema:"description:Remote URL of the media to analyze. For analyze_video this may also be a YouTube URL, which is passed to the model by reference and never downloaded."`
	Path     string `json:"path,omitempty" jsonschema:"description:Local file path (supports ~, $VAR and file:// forms) or an object key returned by upload_media."`
	Data     string `json:"data,omitempty" jsonschema:"description:Inline base64 payload or data: URI. Images only."`
	MIMEType string `json:"mime_type,omitempty" jsonschema:"description:Optional MIME type hint (e.g. 'image/png', 'video/mp4') for path and data sources, where it wins over detection. URL sources are typed from the response instead."`
}

type AnalyzeImageInput struct {
	Sources []MediaSourceInput `json:"sources" jsonschema:"description:Images to analyze. Each source must set exactly one of url, path, or data."`
	Prompt  string             `json:"prompt,omitempty" jsonschema:"description:Question or instruction for the model. Defaults to a detailed description request."`
}

type AnalyzeVideoInput struct {
	Sources []MediaSourceInput `json:"sources" jsonschema:"description:Videos to analyze. Each source must set url (direct or YouTube) or path; inline data is not supported for video."`
	Prompt  string             `json:"prompt,omitempty" jsonschema:"description:Question or instruction for the model. Defaults to a detailed description request."`
}

type AnalyzeOutput struct {
	Analysis    string `json:"analysis"`
	Model       string `json:"model"`
	SourceCount int    `json:"source_count"`
	AnalyzedAt  string `json:"analyzed_at"`
}

// Upload Media Input/Output types
type UploadMediaInput struct {
	Data     string `json:"data,omitempty" jsonschema:"description:Base64 encoded media data (image or video). Required if url is not provided."`
	URL      string `json:"url,omitempty" jsonschema:"description:URL of the media to download and upload. Required if data is not provided."`
	MIMEType string `json:"mime_type" jsonschema:"description:MIME type of the media (e.g., 'image/png', 'image/jpeg', 'video/mp4'). Required."`
	Prefix   string `json:"prefix,omitempty" jsonschema:"description:Optional prefix for the stored object key (default: 'upload')"`
}

type UploadMediaOutput struct {
	ObjectKey   string `json:"object_key"`
	DownloadURL string `json:"download_url,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	MIMEType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Message     string `json:"message"`
	UploadedAt  string `json:"uploaded_at"`
}

func main() {
	// Optional .env for local development; ignored when absent
	_ = godotenv.Load()

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", serviceName, version)
		fmt.Println("A Model Context Protocol server for Gemini-powered image and video analysis")
		fmt.Printf("Built: %s\n", buildTime)
		fmt.Printf("Commit: %s\n", gitCommit)
		return
	}

	// Load configuration
	config := common.LoadConfig()

	// Override transport if specified via flag
	if *transport != "" {
		config.Transport = *transport
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create Gemini client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}

	// Initialize storage backend
	stor, err := storage.NewStorage(config)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer stor.Close()

	analyzer := media.NewAnalyzer(client, media.Options{
		Model:           config.Model,
		InlineLimit:     config.InlineLimit,
		FetchTimeout:    config.FetchTimeout,
		PollInterval:    config.PollInterval,
		PollMaxAttempts: config.PollMaxAttempts,
		MediaRoots:      config.MediaRoots,
		AllowedPaths:    config.AllowedPaths,
	})

	server := &Server{
		config:   config,
		analyzer: analyzer,
		storage:  stor,
		fetcher:  media.NewHTTPFetcher(config.FetchTimeout),
	}

	// Create MCP server
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    serviceName,
		Version: version,
	}, nil)

	// Register tools
	server.registerTools(mcpServer)

	log.Printf("Starting %s v%s (Transport: %s, Model: %s)", serviceName, version, config.Transport, config.Model)
	if config.S3Enabled {
		log.Printf("S3 storage enabled (bucket: %s, TTL: %v)", config.S3Bucket, config.S3ObjectTTL)
	}
	if len(config.AllowedPaths) == 0 {
		log.Printf("Local path allow-list not configured - all readable paths are allowed")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, cleaning up...")
		cancel()
	}()

	// Select transport based on configuration
	switch config.Transport {
	case "http", "sse":
		// HTTP/SSE Transport using StreamableHTTPHandler
		if err := runHTTPServer(ctx, mcpServer, config); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case "stdio":
		fallthrough
	default:
		// stdio Transport (default)
		if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}

// runHTTPServer starts the MCP server with HTTP transport
func runHTTPServer(ctx context.Context, mcpServer *mcp.Server, config *common.Config) error {
	// Create StreamableHTTPHandler
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	// Wrap with authentication middleware if tokens are configured
	var httpHandler http.Handler = handler
	if config.AuthEnabled && len(config.ServiceTokens) > 0 {
		log.Printf("Authentication enabled with %d configured tokens", len(config.ServiceTokens))
		httpHandler = middleware.AuthMiddleware(config.ServiceTokens, handler)
	} else {
		log.Printf("WARNING: Authentication disabled - server is publicly accessible")
	}

	// Create HTTP server with graceful shutdown support
	addr := ":" + config.Port
	server := &http.Server{
		Addr:    addr,
		Handler: httpHandler,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) registerTools(server *mcp.Server) {
	// Register analyze_image tool
	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_image",
		Description: `Analyze one or more images with Gemini and return a natural-language answer. Sources may be remote URLs, local file paths, inline base64 payloads, or object keys returned by upload_media.

Sources that cannot be resolved (unreachable URL, missing file, non-image content) are skipped with a logged reason; the call fails only when no source survives. Large payloads are staged through the Gemini Files API automatically.`,
	}, s.handleAnalyzeImage)

	// Register analyze_video tool
	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_video",
		Description: `Analyze one or more videos with Gemini and return a natural-language answer. Sources may be remote URLs, local file paths, object keys returned by upload_media, or YouTube URLs (passed to the model by reference, never downloaded).

Accepted formats: mp4, mpeg, mov, avi, flv, mpg, webm, wmv, 3gpp, m4v. Local and oversized videos are staged through the Gemini Files API and the call waits for the upload to activate before analyzing.`,
	}, s.handleAnalyzeVideo)

	// Register upload_media tool
	mcp.AddTool(server, &mcp.Tool{
		Name: "upload_media",
		Description: `Upload images or videos to storage for later analysis. Returns an object_key that can be used as a 'path' source with analyze_image and analyze_video.

INPUT METHODS:
1. base64 data: Encode the media to base64 and pass via 'data' parameter with 'mime_type'.
2. URL: Pass a publicly accessible URL via 'url' parameter with 'mime_type'.

IMPORTANT: Do NOT read base64 content into your context - pass the base64 string directly to the tool parameter. MIME type is required.`,
	}, s.handleUploadMedia)
}

// resolveObjectKey resolves a path-like input that may be a storage object
// key (a date-prefixed key like "2025/08/26/upload_ab12.png" for S3, a flat
// content-addressed filename for local storage). A successful retrieval
// yields a local path plus a cleanup function; everything else passes
// through untouched so the media pipeline can do its own path expansion.
func (s *Server) resolveObjectKey(ctx context.Context, inputPath string) (string, func()) {
	if strings.HasPrefix(inputPath, "/") || strings.HasPrefix(inputPath, "~") ||
		strings.HasPrefix(inputPath, "$") || strings.HasPrefix(inputPath, "file://") {
		return inputPath, nil
	}
	localPath, cleanup, err := s.storage.Retrieve(ctx, inputPath)
	if err != nil {
		return inputPath, nil
	}
	log.Printf("Resolved object key %s to %s", inputPath, localPath)
	return localPath, cleanup
}

func (s *Server) handleAnalyzeImage(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeImageInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
	if len(input.Sources) == 0 {
		return nil, AnalyzeOutput{}, fmt.Errorf("at least one source is required")
	}

	prompt := input.Prompt
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	var cleanups []func()
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	sources := make([]media.Source, 0, len(input.Sources))
	for i, in := range input.Sources {
		switch {
		case in.Data != "":
			sources = append(sources, media.InlineSource{Data: in.Data, MIMEType: in.MIMEType})
		case in.URL != "":
			sources = append(sources, media.URLSource{MediaKind: media.KindImage, URL: in.URL})
		case in.Path != "":
			path, cleanup := s.resolveObjectKey(ctx, in.Path)
			if cleanup != nil {
				cleanups = append(cleanups, cleanup)
			}
			sources = append(sources, media.LocalSource{MediaKind: media.KindImage, Path: path, MIMEType: in.MIMEType})
		default:
			return nil, AnalyzeOutput{}, fmt.Errorf("source %d: one of 'url', 'path', or 'data' is required", i)
		}
	}

	log.Printf("Analyzing %d image source(s): %s", len(sources), prompt)

	text, err := s.analyzer.AnalyzeImages(ctx, sources, prompt)
	if err != nil {
		return nil, AnalyzeOutput{}, fmt.Errorf("image analysis failed: %w", err)
	}

	return textResult(text), AnalyzeOutput{
		Analysis:    text,
		Model:       s.config.Model,
		SourceCount: len(sources),
		AnalyzedAt:  time.Now().Format(time.RFC3339),
	}, nil
}

func (s *Server) handleAnalyzeVideo(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeVideoInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
	if len(input.Sources) == 0 {
		return nil, AnalyzeOutput{}, fmt.Errorf("at least one source is required")
	}

	prompt := input.Prompt
	if prompt == "" {
		prompt = defaultVideoPrompt
	}

	var cleanups []func()
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	sources := make([]media.Source, 0, len(input.Sources))
	for i, in := range input.Sources {
		switch {
		case in.Data != "":
			return nil, AnalyzeOutput{}, fmt.Errorf("source %d: inline data is not supported for video sources", i)
		case in.URL != "" && media.IsStreamingURL(in.URL):
			sources = append(sources, media.StreamSource{URL: in.URL})
		case in.URL != "":
			sources = append(sources, media.URLSource{MediaKind: media.KindVideo, URL: in.URL})
		case in.Path != "":
			path, cleanup := s.resolveObjectKey(ctx, in.Path)
			if cleanup != nil {
				cleanups = append(cleanups, cleanup)
			}
			sources = append(sources, media.LocalSource{MediaKind: media.KindVideo, Path: path, MIMEType: in.MIMEType})
		default:
			return nil, AnalyzeOutput{}, fmt.Errorf("source %d: one of 'url' or 'path' is required", i)
		}
	}

	log.Printf("Analyzing %d video source(s): %s", len(sources), prompt)

	text, err := s.analyzer.AnalyzeVideos(ctx, sources, prompt)
	if err != nil {
		return nil, AnalyzeOutput{}, fmt.Errorf("video analysis failed: %w", err)
	}

	return textResult(text), AnalyzeOutput{
		Analysis:    text,
		Model:       s.config.Model,
		SourceCount: len(sources),
		AnalyzedAt:  time.Now().Format(time.RFC3339),
	}, nil
}

func (s *Server) handleUploadMedia(ctx context.Context, req *mcp.CallToolRequest, input UploadMediaInput) (*mcp.CallToolResult, UploadMediaOutput, error) {
	if input.Data == "" && input.URL == "" {
		return nil, UploadMediaOutput{}, fmt.Errorf("one of 'data' (base64) or 'url' is required")
	}

	if input.MIMEType == "" {
		return nil, UploadMediaOutput{}, fmt.Errorf("mime_type is required")
	}

	var data []byte
	var err error
	mimeType := input.MIMEType

	if input.Data != "" {
		// Decode base64 data
		data, err = base64.StdEncoding.DecodeString(input.Data)
		if err != nil {
			return nil, UploadMediaOutput{}, fmt.Errorf("failed to decode base64 data: %v", err)
		}
		log.Printf("Uploading %d bytes of %s data", len(data), mimeType)
	} else {
		// Download from URL with the same bounded-timeout client the
		// analyze pipeline uses
		log.Printf("Downloading media from URL: %s", input.URL)
		res, err := s.fetcher.Fetch(ctx, input.URL)
		if err != nil {
			return nil, UploadMediaOutput{}, fmt.Errorf("failed to download from URL: %v", err)
		}
		data = res.Data
		log.Printf("Downloaded %d bytes from URL", len(data))
	}

	prefix := input.Prefix
	if prefix == "" {
		prefix = "upload"
	}

	// Store via storage interface
	result, err := s.storage.Store(ctx, data, mimeType, prefix)
	if err != nil {
		return nil, UploadMediaOutput{}, fmt.Errorf("failed to store media: %v", err)
	}

	log.Printf("Stored uploaded media: %s", result.ObjectKey)

	timestamp := time.Now().Format("20060102_150405")
	var expiresAt string
	var downloadURL string

	if s.storage.IsRemote() {
		downloadURL = result.Location
		if result.ExpiresAt != nil {
			expiresAt = result.ExpiresAt.Format(time.RFC3339)
		}
	}

	// Build result message
	var contentText string
	if s.storage.IsRemote() {
		contentText = fmt.Sprintf("Media uploaded successfully.\nObject Key: %s\nDownload URL: %s", result.ObjectKey, downloadURL)
		if expiresAt != "" {
			contentText += fmt.Sprintf("\nURL expires at: %s", expiresAt)
		}
	} else {
		contentText = fmt.Sprintf("Media uploaded successfully.\nStored at: %s", result.Location)
	}

	contentText += fmt.Sprintf("\n\nUse object_key '%s' as a 'path' source with analyze_image or analyze_video.", result.ObjectKey)

	return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{
					Text: contentText,
				},
			},
		}, UploadMediaOutput{
			ObjectKey:   result.ObjectKey,
			DownloadURL: downloadURL,
			ExpiresAt:   expiresAt,
			MIMEType:    mimeType,
			Size:        result.Size,
			Message:     "Media uploaded successfully",
			UploadedAt:  timestamp,
		}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: text,
			},
		},
	}
}
