package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitCoversInput(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		maxChars   int
		wantChunks int
	}{
		{"empty", "", 10, 1},
		{"shorter than max", "hello", 10, 1},
		{"exact multiple", strings.Repeat("a", 20), 10, 2},
		{"remainder", strings.Repeat("a", 25), 10, 3},
		{"single char", "x", 10, 1},
		{"long document", strings.Repeat("word ", 3000), 5000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.maxChars)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("expected %d chunks, got %d", tt.wantChunks, len(chunks))
			}

			// Concatenation must reproduce the original text in order.
			var sb strings.Builder
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if c.Text == "" && tt.text != "" {
					t.Errorf("chunk %d is empty for non-empty input", i)
				}
				sb.WriteString(c.Text)
			}
			if sb.String() != tt.text {
				t.Error("concatenated chunks do not equal original text")
			}
		})
	}
}

func TestSplitSegmentBounds(t *testing.T) {
	chunks := Split(strings.Repeat("b", 105), 10)
	for i, c := range chunks {
		if len(c.Text) > 10 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c.Text))
		}
	}
	last := chunks[len(chunks)-1]
	if len(last.Text) != 5 {
		t.Errorf("expected final chunk of 5 chars, got %d", len(last.Text))
	}
}

func TestSplitKeepsRunesIntact(t *testing.T) {
	// Each rune is 3 bytes, so a cut at 4 bytes lands mid-rune and must
	// back off to the previous rune boundary.
	text := strings.Repeat("日本語", 5)
	chunks := Split(text, 4)

	var sb strings.Builder
	for i, c := range chunks {
		if !utf8.ValidString(c.Text) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c.Text)
		}
		if len(c.Text) > 4 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c.Text))
		}
		sb.WriteString(c.Text)
	}
	if sb.String() != text {
		t.Error("concatenated chunks do not equal original text")
	}
}

func TestSplitInvalidMax(t *testing.T) {
	chunks := Split("abc", 0)
	if len(chunks) != 1 || chunks[0].Text != "abc" {
		t.Errorf("expected fallback to default max, got %v", chunks)
	}
}
