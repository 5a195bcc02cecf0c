package payload

import (
	"errors"
	"strings"
	"testing"

	kit "castbot/internal/transport"
)

func TestParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  Message
	}{
		{
			name:  "video with caption and button",
			input: "http://x/a.mp4 caption here | Go",
			want:  Message{Kind: KindVideo, MediaURL: "http://x/a.mp4", Caption: "caption here", ButtonLabel: "Go"},
		},
		{
			name:  "plain text",
			input: "hello world",
			want:  Message{Kind: KindText, Body: "hello world"},
		},
		{
			name:  "photo without caption",
			input: "https://cdn.example/pic.JPG",
			want:  Message{Kind: KindPhoto, MediaURL: "https://cdn.example/pic.JPG"},
		},
		{
			name:  "video extension case insensitive with query",
			input: "https://cdn.example/clip.MOV?sig=1 watch",
			want:  Message{Kind: KindVideo, MediaURL: "https://cdn.example/clip.MOV?sig=1", Caption: "watch"},
		},
		{
			name:  "escaped pipe stays in text",
			input: `a \| b | Open`,
			want:  Message{Kind: KindText, Body: "a | b", ButtonLabel: "Open"},
		},
		{
			name:  "only first pipe splits",
			input: "text | label | more",
			want:  Message{Kind: KindText, Body: "text", ButtonLabel: "label | more"},
		},
		{
			name:  "empty label means no button",
			input: "hi |  ",
			want:  Message{Kind: KindText, Body: "hi"},
		},
		{
			name:  "multiline caption",
			input: "http://x/a.avi line one\nline two",
			want:  Message{Kind: KindVideo, MediaURL: "http://x/a.avi", Caption: "line one\nline two"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		opts  []Option
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"label only", "| Go", nil},
		{"missing required label", "Welcome!", []Option{RequireLabel()}},
		{"empty required label", "Welcome! | ", []Option{RequireLabel()}},
		{"text too long", strings.Repeat("й", MaxTextRunes+1), nil},
		{"caption too long", "http://x/a.png " + strings.Repeat("a", MaxCaptionRunes+1) + " | Go", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tc.input, tc.opts...)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("Parse(%q) error = %v, want ErrInvalidPayload", tc.input, err)
			}
		})
	}
}

func TestRequireLabelAccepts(t *testing.T) {
	t.Parallel()
	got, err := Parse("Welcome aboard | Open app", RequireLabel())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Body != "Welcome aboard" || got.ButtonLabel != "Open app" {
		t.Fatalf("Parse() = %+v", got)
	}
}

func TestParseAtLimits(t *testing.T) {
	t.Parallel()
	if _, err := Parse(strings.Repeat("й", MaxTextRunes)); err != nil {
		t.Fatalf("text at limit rejected: %v", err)
	}
	if _, err := Parse("http://x/a.mp4 " + strings.Repeat("a", MaxCaptionRunes)); err != nil {
		t.Fatalf("caption at limit rejected: %v", err)
	}
}

func TestOutgoing(t *testing.T) {
	t.Parallel()
	m := Message{Kind: KindPhoto, MediaURL: "http://x/p.png", Caption: "c", ButtonLabel: "Go"}
	out := m.Outgoing("https://app.example")
	if out.Kind != kit.ContentPhoto || out.MediaURL != "http://x/p.png" || out.Caption != "c" {
		t.Fatalf("Outgoing() = %+v", out)
	}
	if out.Button == nil || out.Button.URL != "https://app.example" || out.Button.Label != "Go" {
		t.Fatalf("Outgoing().Button = %+v", out.Button)
	}
	if (Message{Kind: KindText, Body: "x"}).Outgoing("u").Button != nil {
		t.Fatalf("button attached without label")
	}
}
