package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gemini-media-mcp/internal/common"
	"gemini-media-mcp/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// UploadResult is the JSON output printed on success
type UploadResult struct {
	ObjectKey   string `json:"object_key"`
	DownloadURL string `json:"download_url,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	MIMEType    string `json:"mime_type"`
	Size        int64  `json:"size"`
}

// ErrorResult is the JSON output printed on failure
type ErrorResult struct {
	Error string `json:"error"`
}

func main() {
	mimeFlag := flag.String("mime", "", "MIME type of the file (detected from content when omitted)")
	prefix := flag.String("prefix", "upload", "Prefix for the stored object key")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help")

	flag.Parse()

	if *showVersion {
		fmt.Printf("upload_media version %s\n", version)
		fmt.Printf("Build time: %s\n", buildTime)
		fmt.Printf("Git commit: %s\n", gitCommit)
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		printUsage()
		os.Exit(1)
	}

	filePath := args[0]

	if !filepath.IsAbs(filePath) {
		outputError("File path must be absolute: " + filePath)
		os.Exit(1)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			outputError("File not found: " + filePath)
		} else {
			outputError(fmt.Sprintf("Cannot access file: %v", err))
		}
		os.Exit(1)
	}

	if info.IsDir() {
		outputError("Path is a directory, not a file: " + filePath)
		os.Exit(1)
	}

	// Optional .env for local development; ignored when absent
	_ = godotenv.Load()

	cfg := common.LoadUploadConfig()
	if err := cfg.Validate(); err != nil {
		outputError(err.Error())
		os.Exit(1)
	}

	mimeType := *mimeFlag
	if mimeType == "" {
		detected, err := mimetype.DetectFile(filePath)
		if err != nil {
			outputError(fmt.Sprintf("Failed to detect MIME type: %v", err))
			os.Exit(1)
		}
		mimeType = detected.String()
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		outputError(fmt.Sprintf("Failed to read file: %v", err))
		os.Exit(1)
	}

	store, err := storage.NewS3Storage(storage.S3Config{
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		UseSSL:          cfg.S3UseSSL,
		PresignTTL:      cfg.S3PresignTTL,
		ObjectTTL:       cfg.S3ObjectTTL,
	})
	if err != nil {
		outputError(fmt.Sprintf("Failed to connect to storage: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	result, err := store.Store(context.Background(), data, mimeType, *prefix)
	if err != nil {
		outputError(fmt.Sprintf("Failed to store file: %v", err))
		os.Exit(1)
	}

	out := UploadResult{
		ObjectKey:   result.ObjectKey,
		DownloadURL: result.Location,
		MIMEType:    mimeType,
		Size:        result.Size,
	}
	if result.ExpiresAt != nil {
		out.ExpiresAt = result.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}

	jsonBytes, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(jsonBytes))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `upload_media - Upload media files to S3 storage for analysis

Usage:
  upload_media [flags] <file_path>
  upload_media -version
  upload_media -help

Flags:
  --mime      MIME type of the file (detected from content when omitted)
  --prefix    Prefix for the stored object key (default: "upload")

Arguments:
  <file_path>    Absolute path to the file to upload

Environment:
  S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY are required.
  S3_BUCKET, S3_REGION, S3_USE_SSL, S3_PRESIGN_TTL, S3_OBJECT_TTL are optional.

Examples:
  upload_media /Users/example/photo.png
  upload_media --mime video/mp4 /Users/example/clip.mp4

Output:
  JSON object with object_key, download_url, mime_type, size, etc.
  Use the object_key as a 'path' source with analyze_image or analyze_video.
`)
}

func outputError(msg string) {
	result := ErrorResult{Error: msg}
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(os.Stderr, string(jsonBytes))
}
