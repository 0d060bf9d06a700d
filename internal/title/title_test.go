package title

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"plain", "Weekly Sync", "Weekly Sync"},
		{"invalid characters stripped", `Design: "v2" <draft>?`, "Design v2 draft"},
		{"path separators stripped", `notes\2024/q3`, "notes2024q3"},
		{"whitespace collapsed", "a\t b\n  c", "a b c"},
		{"leading and trailing trimmed", "  padded  ", "padded"},
		{"empty", "", DefaultSlug},
		{"only invalid characters", `\/:*?"<>|`, DefaultSlug},
		{"unicode preserved", "会議メモ 第3回", "会議メモ 第3回"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.label); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := Sanitize(long)
	if len([]rune(got)) != MaxLength {
		t.Errorf("len = %d, want %d", len([]rune(got)), MaxLength)
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("あ", 200)
	got := Sanitize(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if n := len([]rune(got)); n != MaxLength {
		t.Errorf("rune count = %d, want %d", n, MaxLength)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Weekly Sync", "weekly_sync"},
		{"Design Review: Q3", "design_review_q3"},
		{"", DefaultSlug},
		{"   ", DefaultSlug},
	}

	for _, tt := range tests {
		if got := Slugify(tt.label); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
