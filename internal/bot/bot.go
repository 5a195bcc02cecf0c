// Package bot holds the Telegram command handlers: subscription, the admin
// menu, welcome settings, broadcasting and recall.
package bot

import (
	"context"
	"sync/atomic"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	"castbot/internal/transport/telegram/router"
	logx "castbot/pkg/logx"
)

// Runner starts detached work that must outlive the command timeout.
// *supervisor.Supervisor implements it.
type Runner interface {
	Go0(name string, fn func(ctx context.Context))
}

type Deps struct {
	Store    storage.Store
	Engine   *broadcast.Engine
	Recaller *broadcast.Recaller
	Runner   Runner
	Log      logx.Logger
}

type Bot struct {
	store    storage.Store
	engine   *broadcast.Engine
	recaller *broadcast.Recaller
	runner   Runner
	log      logx.Logger

	webAppURL atomic.Value // string
}

func New(d Deps, webAppURL string) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	b := &Bot{
		store:    d.Store,
		engine:   d.Engine,
		recaller: d.Recaller,
		runner:   d.Runner,
		log:      d.Log.With(logx.String("comp", "bot")),
	}
	b.SetWebAppURL(webAppURL)
	return b
}

// SetWebAppURL changes the page opened by welcome and broadcast buttons.
func (b *Bot) SetWebAppURL(u string) { b.webAppURL.Store(u) }

func (b *Bot) appURL() string {
	u, _ := b.webAppURL.Load().(string)
	return u
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "subscribe and open the app", Access: router.AccessEveryone, Timeout: 15 * time.Second, Handle: b.handleStart},
		{Name: "admin", Description: "admin panel", Access: router.AccessOwnerOnly, Handle: b.handleAdmin},
		{Name: "stats", Description: "subscriber counts", Access: router.AccessOwnerOnly, Timeout: 15 * time.Second, Handle: b.handleStats},
		{Name: "setwelcome", Description: "set the welcome message", Usage: "/setwelcome <text> | <button>", Access: router.AccessOwnerOnly, Timeout: 10 * time.Second, Handle: b.handleSetWelcome},
		{Name: "preview", Description: "send a message to yourself", Usage: "/preview <text or media url> [| button]", Access: router.AccessOwnerOnly, Timeout: 30 * time.Second, Handle: b.handlePreview},
		{Name: "send", Description: "broadcast to all subscribers", Usage: "/send <text or media url> [| button]", Access: router.AccessOwnerOnly, Timeout: 15 * time.Second, Handle: b.handleSend},
		{Name: "deleteall", Description: "delete the last broadcast everywhere", Access: router.AccessOwnerOnly, Timeout: 5 * time.Second, Handle: b.handleDeleteAll},
		{Name: "status", Description: "broadcast progress", Access: router.AccessOwnerOnly, Timeout: 10 * time.Second, Handle: b.handleStatus},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Group: "admin", Action: "stats", Timeout: 15 * time.Second, Handle: func(ctx context.Context, req *router.Request, _ string) error { return b.handleStats(ctx, req) }},
		{Group: "admin", Action: "help", Handle: b.cbGuide},
		{Group: "admin", Action: "refresh", Handle: b.cbRefresh},
	}
}

// Observe records activity for every private message so the audience and
// the active counts stay current.
func (b *Bot) Observe(ctx context.Context, msg *kit.Message) {
	if msg == nil || !msg.IsPrivate || msg.FromID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.store.UpsertRecipient(ctx, recipientOf(msg)); err != nil {
		b.log.Warn("touch recipient failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}
}

func recipientOf(msg *kit.Message) storage.Recipient {
	return storage.Recipient{
		ID:         msg.FromID,
		Username:   msg.FromUsername,
		FirstName:  msg.FromFirstName,
		LastActive: time.Now(),
	}
}
