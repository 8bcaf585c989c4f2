package media

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PathResolver normalizes user-supplied paths into absolute paths of
// existing regular files. Every malformed input yields an error, never a
// panic; callers treat a failed resolution as a skip for that source.
type PathResolver struct {
	// Roots are extra base directories tried, in order, when the path is
	// relative. The current working directory is always tried first and
	// the executable's directory last.
	Roots []string

	// AllowedPaths is a prefix allow-list applied after resolution. When
	// empty the gate is open: this server runs for a trusted local
	// operator, so unrestricted local reads are the deliberate default.
	AllowedPaths []string
}

var windowsEnvRef = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// Resolve turns a raw user path into an absolute path of an existing
// regular file, or an error naming every candidate it tried.
func (r *PathResolver) Resolve(raw string) (string, error) {
	p := stripQuotes(strings.TrimSpace(raw))
	if p == "" {
		return "", fmt.Errorf("empty path")
	}

	p = expandHome(p)
	p = expandEnvRefs(p)
	if decoded, ok := fileURIPath(p); ok {
		p = decoded
	}

	var candidates []string
	if filepath.IsAbs(p) {
		candidates = []string{filepath.Clean(p)}
	} else {
		for _, base := range r.searchBases() {
			candidates = append(candidates, filepath.Clean(filepath.Join(base, p)))
		}
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := r.checkAllowed(c); err != nil {
			return "", err
		}
		return c, nil
	}
	return "", fmt.Errorf("file not found: %s (tried %s)", raw, strings.Join(candidates, ", "))
}

func (r *PathResolver) searchBases() []string {
	var bases []string
	if cwd, err := os.Getwd(); err == nil {
		bases = append(bases, cwd)
	}
	bases = append(bases, r.Roots...)
	if exe, err := os.Executable(); err == nil {
		bases = append(bases, filepath.Dir(exe))
	}
	return bases
}

func (r *PathResolver) checkAllowed(abs string) error {
	if len(r.AllowedPaths) == 0 {
		return nil
	}
	for _, allowed := range r.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if abs == allowed || strings.HasPrefix(abs, allowed+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path %s is outside the configured allow-list", abs)
}

func stripQuotes(p string) string {
	if len(p) >= 2 {
		if (p[0] == '"' && p[len(p)-1] == '"') || (p[0] == '\'' && p[len(p)-1] == '\'') {
			return p[1 : len(p)-1]
		}
	}
	return p
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

// expandEnvRefs expands $VAR, ${VAR} and %VAR% references. Unset
// variables in %VAR% form are left untouched so a literal percent path
// still resolves.
func expandEnvRefs(p string) string {
	p = os.ExpandEnv(p)
	return windowsEnvRef.ReplaceAllStringFunc(p, func(ref string) string {
		name := ref[1 : len(ref)-1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

// fileURIPath decodes a file:// URI into a filesystem path. The second
// return is false when the input is not a file URI.
func fileURIPath(p string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(p), "file://") {
		return "", false
	}
	u, err := url.Parse(p)
	if err != nil || u.Path == "" {
		return "", false
	}
	return u.Path, true
}
