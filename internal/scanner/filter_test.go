package scanner

import (
	"strings"
	"testing"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

func file(name string, size int64) FileInfo {
	return FileInfo{Path: "/src/" + name, RelPath: name, Name: name, Size: size}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		cfg  job.FilterConfig
		file FileInfo
		want bool
	}{
		{
			name: "disabled matches everything",
			cfg:  job.FilterConfig{Enabled: false, IncludeExtensions: []string{".txt"}},
			file: file("b.pdf", 10),
			want: true,
		},
		{
			name: "include list accepts listed extension",
			cfg:  job.FilterConfig{Enabled: true, IncludeExtensions: []string{".txt"}},
			file: file("a.txt", 10),
			want: true,
		},
		{
			name: "include list rejects other extension",
			cfg:  job.FilterConfig{Enabled: true, IncludeExtensions: []string{".txt"}},
			file: file("b.pdf", 10),
			want: false,
		},
		{
			name: "empty include list allows by default",
			cfg:  job.FilterConfig{Enabled: true, ExcludeExtensions: []string{".tmp"}},
			file: file("b.pdf", 10),
			want: true,
		},
		{
			name: "exclude wins over include",
			cfg: job.FilterConfig{
				Enabled:           true,
				IncludeExtensions: []string{".log"},
				ExcludeExtensions: []string{".log"},
			},
			file: file("app.log", 10),
			want: false,
		},
		{
			name: "extensions are case-insensitive without dot",
			cfg:  job.FilterConfig{Enabled: true, IncludeExtensions: []string{"TXT"}},
			file: file("README.Txt", 10),
			want: true,
		},
		{
			name: "no extension with include list",
			cfg:  job.FilterConfig{Enabled: true, IncludeExtensions: []string{".txt"}},
			file: file("Makefile", 10),
			want: false,
		},
		{
			name: "below minimum size",
			cfg:  job.FilterConfig{Enabled: true, MinSizeBytes: 100},
			file: file("a.txt", 99),
			want: false,
		},
		{
			name: "above maximum size",
			cfg:  job.FilterConfig{Enabled: true, MaxSizeBytes: 100},
			file: file("a.txt", 101),
			want: false,
		},
		{
			name: "inside size bounds",
			cfg:  job.FilterConfig{Enabled: true, MinSizeBytes: 10, MaxSizeBytes: 100},
			file: file("a.txt", 100),
			want: true,
		},
		{
			name: "hidden skipped",
			cfg:  job.FilterConfig{Enabled: true, SkipHidden: true},
			file: FileInfo{Name: ".env", RelPath: ".env", Hidden: true},
			want: false,
		},
		{
			name: "hidden kept by default",
			cfg:  job.FilterConfig{Enabled: true},
			file: FileInfo{Name: ".env", RelPath: ".env", Hidden: true},
			want: true,
		},
		{
			name: "system skipped",
			cfg:  job.FilterConfig{Enabled: true, SkipSystem: true},
			file: FileInfo{Name: "desktop.ini", RelPath: "desktop.ini", System: true},
			want: false,
		},
		{
			name: "read-only skipped",
			cfg:  job.FilterConfig{Enabled: true, SkipReadOnly: true},
			file: FileInfo{Name: "a.txt", RelPath: "a.txt", ReadOnly: true},
			want: false,
		},
		{
			name: "exclude pattern on base name",
			cfg:  job.FilterConfig{Enabled: true, ExcludePatterns: []string{"~$*"}},
			file: file("~$report.docx", 10),
			want: false,
		},
		{
			name: "exclude pattern on relative path",
			cfg:  job.FilterConfig{Enabled: true, ExcludePatterns: []string{"cache/**"}},
			file: FileInfo{Name: "x.bin", RelPath: "cache/deep/x.bin"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.file, tt.cfg); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.file.Name, got, tt.want)
			}
		})
	}
}

func TestFilterExplain(t *testing.T) {
	f, err := NewFilter(job.FilterConfig{Enabled: true, ExcludeExtensions: []string{".tmp"}})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	ok, reason := f.Explain(file("x.TMP", 1))
	if ok || reason == "" {
		t.Errorf("Explain = %v %q, want rejection with reason", ok, reason)
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := map[string]string{
		"txt":   ".txt",
		".TXT":  ".txt",
		" .Gz ": ".gz",
		"":      "",
	}
	for in, want := range tests {
		if got := NormalizeExtension(in); got != want {
			t.Errorf("NormalizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	if msgs := ValidatePatterns([]string{"*.tmp", "cache/", "**/build/**"}); len(msgs) != 0 {
		t.Errorf("valid patterns reported: %v", msgs)
	}
	msgs := ValidatePatterns([]string{"*.log", " ", "/"})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "#2") {
		t.Errorf("first message should name pattern #2: %q", msgs[0])
	}
}

func TestCompilePatternsRejectsEmpty(t *testing.T) {
	if _, err := CompilePatterns([]string{"  "}); err == nil {
		t.Error("expected error for empty pattern")
	}
}

func TestGlobToRegex(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"*.tmp", "file.tmp", false, true},
		{"*.tmp", "file.tmp.txt", false, false},
		{"file?.log", "file1.log", false, true},
		{"node_modules/", "node_modules", true, true},
		{"node_modules/", "node_modules", false, false},
		{"Thumbs.db", "thumbs.db", false, true},
		{"build/*.o", "build/main.o", false, true},
		{"build/*.o", "build/sub/main.o", false, false},
	}
	for _, tt := range tests {
		set, err := CompilePatterns([]string{tt.pattern})
		if err != nil {
			t.Fatalf("CompilePatterns(%q): %v", tt.pattern, err)
		}
		if _, got := set.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("pattern %q on %q (dir=%v) = %v, want %v", tt.pattern, tt.path, tt.isDir, got, tt.want)
		}
	}
}
