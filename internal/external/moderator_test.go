package external

import (
	"testing"

	"github.com/whisper/randchat/internal/moderation"
)

func TestLocalModerator_AllowsCleanText(t *testing.T) {
	m := NewLocalModerator(moderation.NewFilter())

	allow, reason, err := m.Check("hey, how's your day going?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allow {
		t.Errorf("expected clean text to be allowed, reason=%q", reason)
	}
}

func TestLocalModerator_BlocksFilteredText(t *testing.T) {
	m := NewLocalModerator(moderation.NewFilter())

	allow, reason, err := m.Check("kill yourself")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allow {
		t.Fatal("expected blocked phrase to be vetoed")
	}
	if reason != "blocked_keyword" {
		t.Errorf("expected reason=%q, got %q", "blocked_keyword", reason)
	}
}
