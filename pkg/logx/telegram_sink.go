package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "castbot/internal/transport"
)

const (
	tgMaxMessage = 3500
	tgMaxValue   = 600
	tgMaxStack   = 900
)

type tgItem struct {
	to  kit.ChatTarget
	msg string
}

// telegramSink forwards log lines at or above minLevel to an operator chat.
// Writes never block: the queue drops when full and the limiter drops bursts.
type telegramSink struct {
	sender kit.Adapter
	queue  chan tgItem

	mu       sync.Mutex
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

func newTelegramSink(sender kit.Adapter, threadID int) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan tgItem, 256),
		threadID: threadID,
		minLevel: zerolog.WarnLevel,
		limiter:  rateFor(1),
	}
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.chatID = chatID
	if threadID != 0 {
		t.threadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) setSender(sender kit.Adapter) {
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID != 0
}

func (t *telegramSink) configure(min zerolog.Level, perSec, threadID int) {
	t.mu.Lock()
	t.minLevel = min
	t.limiter = rateFor(perSec)
	if threadID != 0 {
		t.threadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			t.mu.Lock()
			sender := t.sender
			t.mu.Unlock()
			if sender == nil {
				continue
			}
			_, _ = sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	chatID, threadID, min, lim, sender := t.chatID, t.threadID, t.minLevel, t.limiter, t.sender
	t.mu.Unlock()

	if chatID == 0 || sender == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	msg := renderForChat(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- tgItem{to: kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, msg: msg}:
	default:
	}
	return len(p), nil
}

// renderForChat turns one zerolog JSON line into a compact plain-text message.
func renderForChat(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return clip(strings.TrimSpace(string(p)), tgMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "stack" {
			b.WriteString("\n- stack=\n")
			b.WriteString(clip(fmt.Sprint(m[k]), tgMaxStack))
			continue
		}
		b.WriteString("\n- " + k + "=")
		b.WriteString(clip(fmt.Sprint(m[k]), tgMaxValue))
	}
	return clip(b.String(), tgMaxMessage)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
