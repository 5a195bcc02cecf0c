package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	texts    []string
	answered []string
	menu     []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}
func (f *fakeAdapter) SendMessage(ctx context.Context, to kit.ChatTarget, msg kit.Outgoing) (kit.MessageRef, error) {
	return f.SendText(ctx, to, msg.Text, nil)
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, kit.MessageRef) error { return nil }
func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	f.answered = append(f.answered, id+"|"+text)
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func startRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, ch)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ch
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, word, rest string
		ok             bool
	}{
		{"/start", "start", "", true},
		{"/Send hello world", "send", "hello world", true},
		{"/send@castbot line1\nline2", "send", "line1\nline2", true},
		{"  /stats  ", "stats", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, c := range cases {
		w, r, ok := splitCommand(c.in)
		if w != c.word || r != c.rest || ok != c.ok {
			t.Fatalf("splitCommand(%q) = %q, %q, %v, want %q, %q, %v", c.in, w, r, ok, c.word, c.rest, c.ok)
		}
	}
}

func TestDispatchRunsHandlerWithRawArgs(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, []int64{1})
	got := make(chan *Request, 1)
	r.SetRegistry(context.Background(), []Command{{
		Name:   "send",
		Access: AccessOwnerOnly,
		Handle: func(_ context.Context, req *Request) error {
			got <- req
			return nil
		},
	}}, nil)
	ch := startRouter(t, r)

	ch <- msg(1, "/send first line\n  second|Go")
	select {
	case req := <-got:
		if req.ArgText != "first line\n  second|Go" {
			t.Fatalf("ArgText = %q", req.ArgText)
		}
		if !req.Owner || req.Command != "/send" {
			t.Fatalf("Owner = %v, Command = %q", req.Owner, req.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not called")
	}
}

func TestOwnerOnlyRejectsOthers(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, []int64{1})
	called := make(chan struct{}, 1)
	r.SetRegistry(context.Background(), []Command{{
		Name:   "stats",
		Access: AccessOwnerOnly,
		Handle: func(context.Context, *Request) error { called <- struct{}{}; return nil },
	}}, nil)
	ch := startRouter(t, r)

	ch <- msg(2, "/stats")
	eventually(t, func() bool { return len(ad.sent()) == 1 })
	if !strings.Contains(ad.sent()[0], "administrators") {
		t.Fatalf("reply = %q", ad.sent()[0])
	}
	select {
	case <-called:
		t.Fatalf("handler ran for non-owner")
	default:
	}

	// owners reload at runtime
	r.SetOwners([]int64{2})
	ch <- msg(2, "/stats")
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not called after owner reload")
	}
}

func TestUnknownCommandAndObserver(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, nil)
	seen := make(chan int64, 4)
	r.SetObserver(func(_ context.Context, m *kit.Message) { seen <- m.FromID })
	r.SetRegistry(context.Background(), nil, nil)
	ch := startRouter(t, r)

	ch <- msg(7, "just chatting")
	ch <- msg(7, "/nope")
	eventually(t, func() bool { return len(ad.sent()) == 1 })
	if !strings.Contains(ad.sent()[0], "Unknown command") {
		t.Fatalf("reply = %q", ad.sent()[0])
	}
	for range 2 {
		select {
		case id := <-seen:
			if id != 7 {
				t.Fatalf("observer from = %d, want 7", id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("observer not called")
		}
	}
}

func TestCallbackRouting(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, []int64{1})
	payloads := make(chan string, 1)
	r.SetRegistry(context.Background(), nil, []CallbackRoute{{
		Group:  "admin",
		Action: "stats",
		Handle: func(_ context.Context, _ *Request, p string) error { payloads <- p; return nil },
	}})
	ch := startRouter(t, r)

	ch <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c1", FromID: 2, ChatID: 2, Data: "admin:stats:x"}}
	eventually(t, func() bool {
		ad.mu.Lock()
		defer ad.mu.Unlock()
		return len(ad.answered) == 1
	})
	if ad.answered[0] != "c1|forbidden" {
		t.Fatalf("answer = %q", ad.answered[0])
	}

	ch <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c2", FromID: 1, ChatID: 1, Data: "admin:stats:x:y"}}
	select {
	case p := <-payloads:
		if p != "x:y" {
			t.Fatalf("payload = %q, want x:y", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not routed")
	}
}

func TestHelpAndMenuHideOwnerCommands(t *testing.T) {
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, []int64{1})
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry(context.Background(), []Command{
		{Name: "start", Description: "subscribe", Handle: noop},
		{Name: "send", Description: "broadcast", Usage: "/send <text>", Access: AccessOwnerOnly, Handle: noop},
	}, nil)

	public := r.helpText(false)
	if strings.Contains(public, "/send") || !strings.Contains(public, "/start") {
		t.Fatalf("public help = %q", public)
	}
	if admin := r.helpText(true); !strings.Contains(admin, "/send &lt;text&gt;") {
		t.Fatalf("owner help = %q", admin)
	}

	eventually(t, func() bool {
		ad.mu.Lock()
		defer ad.mu.Unlock()
		return len(ad.menu) == 2
	})
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.menu[0].Command != "start" || ad.menu[1].Command != "help" {
		t.Fatalf("menu = %+v", ad.menu)
	}
}
