// Package router dispatches Telegram commands and inline-button callbacks
// to handlers on a bounded worker pool, enforcing owner-only access.
package router

import (
	"context"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string   // without the leading slash
	Aliases     []string // e.g. ["h"] for help
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute matches button data "group:action[:payload]". Callbacks are
// owner-only unless Public is set.
type CallbackRoute struct {
	Group   string
	Action  string
	Public  bool
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Message *kit.Message // nil for callbacks
	Command string
	// Args are the whitespace-separated words after the command; ArgText
	// is the raw remainder with line breaks and spacing intact.
	Args    []string
	ArgText string
	Payload string // callback payload
	ReqID   string
	Owner   bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the requesting chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Observer sees every inbound message before routing.
type Observer func(ctx context.Context, msg *kit.Message)

type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases
	ordered  []Command
	cbs      map[string]map[string]CallbackRoute
	owners   []int64
	observer Observer

	log     logx.Logger
	adapter kit.Adapter

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func()
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]*Command{},
		cbs:      map[string]map[string]CallbackRoute{},
		owners:   slices.Clone(owners),
		log:      log.With(logx.String("comp", "telegram.router")),
		adapter:  adapter,
		jobs:     make(chan func(), 256),
	}
}

// SetOwners replaces the owner list (config hot reload).
func (m *Router) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

func (m *Router) SetObserver(fn Observer) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

func (m *Router) IsOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// Supervisor returns the worker pool supervisor while DispatchLoop runs.
func (m *Router) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// SetRegistry installs commands and callbacks, adds /help, and publishes
// the public commands as the Telegram menu.
func (m *Router) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, m.helpText(req.Owner), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cc := c
		byName[name] = &cc
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = &cc
				}
			}
		}
		ordered = append(ordered, cc)
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		g, a := strings.TrimSpace(r.Group), strings.TrimSpace(r.Action)
		if g == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[g] == nil {
			cb[g] = map[string]CallbackRoute{}
		}
		cb[g][a] = r
	}

	m.mu.Lock()
	m.commands, m.ordered, m.cbs = byName, ordered, cb
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(ordered))
		for _, c := range ordered {
			if c.Access == AccessEveryone {
				menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
			}
		}
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// DispatchLoop consumes updates until ctx ends or updates closes.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(m.log))
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), m.work,
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", cap(m.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Router) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			job()
		}
	}
}

func (m *Router) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			m.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			m.routeCallback(ctx, up)
		}
	}
}

func (m *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	m.mu.RLock()
	observer := m.observer
	m.mu.RUnlock()
	if observer != nil {
		m.enqueue(func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("message observer panicked", logx.Any("panic", r))
				}
			}()
			observer(ctx, msg)
		})
	}

	word, argText, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd := m.commands[word]
	m.mu.RUnlock()
	if cmd == nil {
		if msg.IsPrivate {
			_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	owner := m.IsOwner(msg.FromID)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = m.adapter.SendText(ctx, chat, "This command is for administrators only.", nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, owner, "/"+cmd.Name)
	req.Message = msg
	req.ArgText = argText
	req.Args = strings.Fields(argText)

	final := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(cmd.Timeout))
	if !m.enqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

func (m *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	group, action, payload := parts[0], parts[1], ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.mu.RLock()
	route, ok := m.cbs[group][action]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	owner := m.IsOwner(cb.FromID)
	if !route.Public && !owner {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, owner, "cb:"+group+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(route.Timeout))
	if !m.enqueue(func() {
		_ = final(ctx, req)
		// stops the button spinner
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, owner bool, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Owner:   owner,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

// splitCommand extracts the lower-cased command word (without "/" and
// "@botname") and the raw text after it.
func splitCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text, ""
	if i := strings.IndexAny(text, " \t\r\n"); i >= 0 {
		head, rest = text[:i], text[i+1:]
	}
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(rest), true
}
