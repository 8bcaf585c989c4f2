package media

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// imageExts maps file extensions to MIME types for image formats the
// Gemini API understands.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".heif": "image/heif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// videoExts maps file extensions to the canonical video MIME types.
var videoExts = map[string]string{
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".wmv":  "video/wmv",
	".3gp":  "video/3gpp",
	".m4v":  "video/x-m4v",
}

// videoAliases maps informal or container-level video types to the
// canonical type the Gemini API accepts.
var videoAliases = map[string]string{
	"video/mov":       "video/quicktime",
	"application/mp4": "video/mp4",
	"video/avi":       "video/x-msvideo",
	"video/msvideo":   "video/x-msvideo",
	"video/x-ms-wmv":  "video/wmv",
	"video/m4v":       "video/x-m4v",
	"video/3gp":       "video/3gpp",
}

// acceptedVideoTypes is the fixed codec set the Gemini API accepts for
// video parts. Anything else is rejected after alias canonicalization.
var acceptedVideoTypes = map[string]bool{
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/mpg":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/x-flv":     true,
	"video/webm":      true,
	"video/wmv":       true,
	"video/3gpp":      true,
	"video/x-m4v":     true,
}

// typeHints carries the evidence available when resolving a source's MIME
// type. Fields are consulted in the priority order resolveMIME documents;
// any of them may be empty.
type typeHints struct {
	declared    string // caller-declared type
	dataURIType string // type embedded in a data: URI prefix
	serverType  string // Content-Type from a completed remote fetch
	name        string // local path or URL whose extension may be mapped
	payload     []byte // bytes in hand, for magic-byte sniffing
	file        string // resolved local file, for header sniffing without a full read
}

// resolveMIME returns the best-guess MIME type for a source. Priority:
// declared hint, data-URI type, server Content-Type, extension table,
// magic-byte sniff, and finally the category wildcard. The result still
// has to pass validateMIME before it is trusted.
func resolveMIME(h typeHints, kind Kind) string {
	for _, candidate := range []string{
		normalizeMIME(h.declared),
		normalizeMIME(h.dataURIType),
		normalizeMIME(h.serverType),
		extensionMIME(h.name),
		sniffMIME(h.payload, h.file),
	} {
		if candidate != "" {
			return candidate
		}
	}
	return wildcardMIME(kind)
}

// validateMIME canonicalizes video aliases and checks that the type's
// top-level category matches the source's kind. A failure here is a
// normal outcome the caller reports as a skip, never a panic.
func validateMIME(mimeType string, kind Kind) (string, error) {
	if mimeType == "" {
		return "", fmt.Errorf("no MIME type could be resolved for %s source", kind)
	}
	if kind == KindVideo {
		if canonical, ok := videoAliases[mimeType]; ok {
			mimeType = canonical
		}
	}
	if mimeType == wildcardMIME(kind) {
		return mimeType, nil
	}
	if !strings.HasPrefix(mimeType, string(kind)+"/") {
		return "", fmt.Errorf("type %s does not match %s source", mimeType, kind)
	}
	if kind == KindVideo && !acceptedVideoTypes[mimeType] {
		return "", fmt.Errorf("video type %s is not accepted by the Gemini API", mimeType)
	}
	return mimeType, nil
}

func wildcardMIME(kind Kind) string {
	return string(kind) + "/*"
}

// normalizeMIME lowercases a type and strips any parameters
// (e.g. "image/PNG; charset=binary" -> "image/png"). Generic types that
// carry no category information are discarded.
func normalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "", "application/octet-stream", "binary/octet-stream":
		return ""
	}
	if !strings.ContainsRune(mimeType, '/') {
		return ""
	}
	return mimeType
}

// extensionMIME maps the extension of a path or URL against the fixed
// extension tables. URLs are parsed first so query strings and fragments
// do not leak into the extension.
func extensionMIME(name string) string {
	if name == "" {
		return ""
	}
	p := name
	if strings.Contains(name, "://") {
		if u, err := url.Parse(name); err == nil && u.Path != "" {
			p = u.Path
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return ""
	}
	if mt, ok := imageExts[ext]; ok {
		return mt
	}
	if mt, ok := videoExts[ext]; ok {
		return mt
	}
	return ""
}

// sniffMIME detects a type from magic bytes. It prefers payload bytes
// already in hand and falls back to reading the file header; it never
// reads a whole file.
func sniffMIME(payload []byte, file string) string {
	if len(payload) > 0 {
		return normalizeMIME(mimetype.Detect(payload).String())
	}
	if file != "" {
		if mt, err := mimetype.DetectFile(file); err == nil {
			return normalizeMIME(mt.String())
		}
	}
	return ""
}
