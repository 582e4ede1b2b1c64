package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitleFromMessage(t *testing.T) {
	short := "Tell me about the harbor"
	if got := TitleFromMessage(short); got != short {
		t.Errorf("TitleFromMessage(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("a", 150)
	if got := TitleFromMessage(long); len(got) != MaxTitleLen {
		t.Errorf("TitleFromMessage(long) len = %d, want %d", len(got), MaxTitleLen)
	}
}

func TestTitleFromMessageRuneBoundary(t *testing.T) {
	// 40 three-byte runes is 120 bytes; byte 100 falls mid-rune, so the cut
	// must back up to the previous rune start.
	message := strings.Repeat("語", 40)
	title := TitleFromMessage(message)

	if !utf8.ValidString(title) {
		t.Fatalf("title is invalid UTF-8: %q", title)
	}
	if len(title) > MaxTitleLen {
		t.Errorf("title len = %d, exceeds %d", len(title), MaxTitleLen)
	}
	if len(title) != 99 {
		t.Errorf("title len = %d, want 99 (33 whole runes)", len(title))
	}
	if !strings.HasPrefix(message, title) {
		t.Errorf("title is not a prefix of the message: %q", title)
	}
}
