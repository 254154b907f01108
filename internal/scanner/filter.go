package scanner

import (
	"strings"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// Filter is a compiled FilterConfig. It holds no mutable state and is safe
// for concurrent use.
type Filter struct {
	cfg      job.FilterConfig
	include  map[string]struct{}
	exclude  map[string]struct{}
	patterns PatternSet
}

// NewFilter compiles cfg. Extensions are compared case-insensitively and the
// leading dot is optional.
func NewFilter(cfg job.FilterConfig) (*Filter, error) {
	patterns, err := CompilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &Filter{
		cfg:      cfg,
		include:  extensionSet(cfg.IncludeExtensions),
		exclude:  extensionSet(cfg.ExcludeExtensions),
		patterns: patterns,
	}, nil
}

// Match reports whether fi should be transferred
func (f *Filter) Match(fi FileInfo) bool {
	ok, _ := f.Explain(fi)
	return ok
}

// Explain is Match plus the reason a file was rejected.
//
// Precedence: a disabled filter accepts everything; an excluded extension
// rejects; a non-empty include list must contain the extension (an empty
// include list accepts); size bounds, attribute flags and exclude patterns
// are further conditions that all must hold.
func (f *Filter) Explain(fi FileInfo) (bool, string) {
	if !f.cfg.Enabled {
		return true, ""
	}

	ext := fi.Extension()
	if _, excluded := f.exclude[ext]; excluded {
		return false, "excluded extension " + ext
	}
	if len(f.include) > 0 {
		if _, included := f.include[ext]; !included {
			return false, "extension not in include list"
		}
	}

	if f.cfg.MinSizeBytes > 0 && fi.Size < f.cfg.MinSizeBytes {
		return false, "smaller than minimum size"
	}
	if f.cfg.MaxSizeBytes > 0 && fi.Size > f.cfg.MaxSizeBytes {
		return false, "larger than maximum size"
	}

	if f.cfg.SkipHidden && fi.Hidden {
		return false, "hidden file"
	}
	if f.cfg.SkipSystem && fi.System {
		return false, "system file"
	}
	if f.cfg.SkipReadOnly && fi.ReadOnly {
		return false, "read-only file"
	}

	if pattern, excluded := f.patterns.Match(fi.RelPath, fi.IsDir); excluded {
		return false, "matched pattern " + pattern
	}

	return true, ""
}

// Matches is the stateless form of Filter.Match
func Matches(fi FileInfo, cfg job.FilterConfig) bool {
	f, err := NewFilter(cfg)
	if err != nil {
		return false
	}
	return f.Match(fi)
}

// NormalizeExtension lowercases ext and ensures a leading dot
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if n := NormalizeExtension(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
