package scanner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Pattern represents a compiled exclusion pattern
type Pattern struct {
	Raw   string         // Original pattern string
	Regex *regexp.Regexp // Compiled regex
	IsDir bool           // Whether pattern is for directories (ends with /)
}

// PatternSet is an ordered list of compiled exclusion patterns
type PatternSet []*Pattern

// CompilePatterns compiles glob patterns (*, ?, **) into a PatternSet
func CompilePatterns(patterns []string) (PatternSet, error) {
	set := make(PatternSet, 0, len(patterns))
	for _, raw := range patterns {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// ValidatePatterns returns one message per pattern that does not compile
func ValidatePatterns(patterns []string) []string {
	var msgs []string
	for i, raw := range patterns {
		if _, err := compilePattern(raw); err != nil {
			msgs = append(msgs, fmt.Sprintf("exclude pattern #%d %q: %v", i+1, raw, err))
		}
	}
	return msgs
}

// Match returns the raw pattern that excludes relPath, if any
func (ps PatternSet) Match(relPath string, isDir bool) (string, bool) {
	baseName := filepath.Base(relPath)
	for _, p := range ps {
		if matchPattern(p, baseName, relPath, isDir) {
			return p.Raw, true
		}
	}
	return "", false
}

// compilePattern compiles a glob pattern into a regex
func compilePattern(patternStr string) (*Pattern, error) {
	patternStr = strings.TrimSpace(patternStr)
	if patternStr == "" || patternStr == "/" {
		return nil, WrapError(ErrInvalidPattern, "empty pattern")
	}

	pattern := &Pattern{
		Raw:   patternStr,
		IsDir: strings.HasSuffix(patternStr, "/"),
	}
	if pattern.IsDir {
		patternStr = strings.TrimSuffix(patternStr, "/")
	}

	regex, err := regexp.Compile(globToRegex(patternStr))
	if err != nil {
		return nil, WrapError(ErrInvalidPattern, "compile pattern regex %s", patternStr)
	}

	pattern.Regex = regex
	return pattern, nil
}

// globToRegex converts a glob pattern to a regex pattern
func globToRegex(glob string) string {
	var result strings.Builder
	result.WriteString("(?i)^")

	for i := 0; i < len(glob); i++ {
		ch := glob[i]
		switch ch {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				result.WriteString(".*") // ** crosses directory separators
				i++
			} else {
				result.WriteString("[^/\\\\]*")
			}
		case '?':
			result.WriteString("[^/\\\\]")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			result.WriteByte('\\')
			result.WriteByte(ch)
		default:
			result.WriteByte(ch)
		}
	}

	result.WriteString("$")
	return result.String()
}

// matchPattern checks if a path matches a pattern
func matchPattern(pattern *Pattern, baseName, fullPath string, isDir bool) bool {
	if pattern.IsDir && !isDir {
		return false
	}

	if pattern.Regex.MatchString(baseName) {
		return true
	}

	// Patterns with separators are matched against the whole relative path
	if strings.ContainsAny(pattern.Raw, "/\\") {
		return pattern.Regex.MatchString(filepath.ToSlash(fullPath))
	}

	return false
}
