// Package payload turns an admin command argument of the form
// "content [| button label]" into a message ready to send.
package payload

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	kit "castbot/internal/transport"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Telegram rejects longer message text and media captions.
const (
	MaxTextRunes    = 4000
	MaxCaptionRunes = 1024
)

type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Message is the parsed argument. Body is set for text, MediaURL and
// Caption for photo and video. An empty ButtonLabel means no button.
type Message struct {
	Kind        Kind
	Body        string
	MediaURL    string
	Caption     string
	ButtonLabel string
}

type options struct {
	requireLabel bool
}

type Option func(*options)

// RequireLabel rejects input without a "| label" part.
func RequireLabel() Option { return func(o *options) { o.requireLabel = true } }

var videoExt = map[string]bool{".mp4": true, ".mov": true, ".avi": true}

func Parse(input string, opts ...Option) (Message, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if strings.TrimSpace(input) == "" {
		return Message{}, errors.Join(ErrInvalidPayload, errors.New("empty input"))
	}

	content, label, hasSep := splitUnescaped(input)
	content, label = strings.TrimSpace(content), strings.TrimSpace(label)
	if o.requireLabel && (!hasSep || label == "") {
		return Message{}, errors.Join(ErrInvalidPayload, errors.New(`missing "| button label"`))
	}
	if content == "" {
		return Message{}, errors.Join(ErrInvalidPayload, errors.New("empty content"))
	}

	msg := Message{ButtonLabel: label}
	first, rest := content, ""
	if i := strings.IndexAny(content, " \t\n"); i >= 0 {
		first, rest = content[:i], content[i+1:]
	}
	if !strings.HasPrefix(first, "http") {
		msg.Kind, msg.Body = KindText, content
		if n := utf8.RuneCountInString(content); n > MaxTextRunes {
			return Message{}, fmt.Errorf("%w: text is %d characters, limit %d", ErrInvalidPayload, n, MaxTextRunes)
		}
		return msg, nil
	}
	msg.MediaURL, msg.Caption = first, strings.TrimSpace(rest)
	msg.Kind = KindPhoto
	if videoExt[strings.ToLower(urlExt(first))] {
		msg.Kind = KindVideo
	}
	if n := utf8.RuneCountInString(msg.Caption); n > MaxCaptionRunes {
		return Message{}, fmt.Errorf("%w: caption is %d characters, limit %d", ErrInvalidPayload, n, MaxCaptionRunes)
	}
	return msg, nil
}

// splitUnescaped cuts s at the first '|' not preceded by a backslash and
// unescapes "\|" in both halves.
func splitUnescaped(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && s[i+1] == '|' {
				i++
			}
		case '|':
			return unescape(s[:i]), unescape(s[i+1:]), true
		}
	}
	return unescape(s), "", false
}

func unescape(s string) string { return strings.ReplaceAll(s, `\|`, "|") }

func urlExt(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return path.Ext(u.Path)
	}
	raw, _, _ = strings.Cut(raw, "?")
	return path.Ext(raw)
}

// Outgoing renders the message for the transport. buttonURL is the target
// of the button; it is ignored when the message has no label.
func (m Message) Outgoing(buttonURL string) kit.Outgoing {
	out := kit.Outgoing{Text: m.Body, MediaURL: m.MediaURL, Caption: m.Caption}
	switch m.Kind {
	case KindPhoto:
		out.Kind = kit.ContentPhoto
	case KindVideo:
		out.Kind = kit.ContentVideo
	default:
		out.Kind = kit.ContentText
	}
	if m.ButtonLabel != "" {
		out.Button = &kit.Button{Label: m.ButtonLabel, URL: buttonURL}
	}
	return out
}

// Summary is a one-line description for acknowledgements and logs.
func (m Message) Summary() string {
	var b strings.Builder
	b.WriteString(string(m.Kind))
	if m.MediaURL != "" {
		b.WriteString(" " + m.MediaURL)
	}
	if m.ButtonLabel != "" {
		b.WriteString(` [button "` + m.ButtonLabel + `"]`)
	}
	return b.String()
}
