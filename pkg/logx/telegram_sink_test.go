package logx

import (
	"strings"
	"testing"
)

func TestRenderForChat(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2024-01-01T00:00:00Z","message":"send failed","recipient":42,"comp":"broadcast"}`
	got := renderForChat([]byte(line))
	want := "[WARN] send failed\n- comp=broadcast\n- recipient=42"
	if got != want {
		t.Fatalf("renderForChat = %q, want %q", got, want)
	}
}

func TestRenderForChatNonJSON(t *testing.T) {
	t.Parallel()
	if got := renderForChat([]byte("  plain line \n")); got != "plain line" {
		t.Fatalf("renderForChat = %q, want %q", got, "plain line")
	}
}

func TestClip(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", 50)
	if got := clip(long, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("clip = %q, want 20 chars ending in ...", got)
	}
	if got := clip("short", 20); got != "short" {
		t.Fatalf("clip = %q, want short", got)
	}
}
