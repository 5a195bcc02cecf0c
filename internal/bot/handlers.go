package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/payload"
	kit "castbot/internal/transport"
	"castbot/internal/transport/telegram/adapter"
	"castbot/internal/transport/telegram/router"
	logx "castbot/pkg/logx"
)

const guideText = `Guide

/setwelcome Text | Button
/preview Text or media URL [| Button]
/send Text or media URL [| Button]
/deleteall removes the last broadcast
/status shows broadcast progress

Media URLs ending in .mp4, .mov or .avi are sent as video, other URLs as photo. Text after the URL becomes the caption. Write \| for a literal bar.`

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	if req.Message == nil {
		return nil
	}
	if err := b.store.UpsertRecipient(ctx, recipientOf(req.Message)); err != nil {
		// still greet; the observer retries on the next message
		req.Logger.Warn("subscribe failed", logx.Err(err))
	}
	w, err := loadWelcome(ctx, b.store)
	if err != nil {
		req.Logger.Warn("load welcome failed", logx.Err(err))
	}
	out := kit.Outgoing{Kind: kit.ContentText, Text: w.render(req.Message.FromFirstName)}
	if u := b.appURL(); u != "" {
		out.Button = &kit.Button{Label: w.Button, URL: u}
	}
	_, err = req.Adapter.SendMessage(ctx, req.Chat, out)
	return err
}

func (b *Bot) handleAdmin(ctx context.Context, req *router.Request) error {
	kb := adapter.Keyboard(
		[2]string{"Stats", "admin:stats"},
		[2]string{"Guide", "admin:help"},
		[2]string{"Refresh", "admin:refresh"},
	)
	_, err := req.Reply(ctx, "Admin panel", &kit.SendOptions{ReplyMarkupAdapter: kb})
	return err
}

func (b *Bot) handleStats(ctx context.Context, req *router.Request) error {
	total, err := b.store.CountRecipients(ctx)
	if err != nil {
		return b.fail(ctx, req, "Could not read stats.", err)
	}
	active, err := b.store.CountActiveSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return b.fail(ctx, req, "Could not read stats.", err)
	}
	_, err = req.Reply(ctx, fmt.Sprintf("Stats\n\nTotal: %d\nActive (24h): %d", total, active), nil)
	return err
}

func (b *Bot) cbGuide(ctx context.Context, req *router.Request, _ string) error {
	_, err := req.Reply(ctx, guideText, &kit.SendOptions{DisablePreview: true})
	return err
}

func (b *Bot) cbRefresh(ctx context.Context, req *router.Request, _ string) error {
	text := "Connection stable."
	switch b.engine.Guard().State() {
	case broadcast.StateBroadcasting:
		text = "System busy: broadcast in progress."
	case broadcast.StateRecalling:
		text = "System busy: deleting the last broadcast."
	}
	_, err := req.Reply(ctx, text, nil)
	return err
}

func (b *Bot) handleSetWelcome(ctx context.Context, req *router.Request) error {
	msg, err := payload.Parse(req.ArgText, payload.RequireLabel())
	if err == nil && msg.Kind != payload.KindText {
		err = errors.New("welcome must be text")
	}
	if err != nil {
		_, err := req.Reply(ctx, "Usage: /setwelcome Text | Button\n"+usageReason(err), nil)
		return err
	}
	if err := saveWelcome(ctx, b.store, WelcomeConfig{Text: msg.Body, Button: msg.ButtonLabel}); err != nil {
		return b.fail(ctx, req, "Could not save the welcome message.", err)
	}
	_, err = req.Reply(ctx, "Welcome updated.", nil)
	return err
}

func (b *Bot) handlePreview(ctx context.Context, req *router.Request) error {
	msg, err := payload.Parse(req.ArgText)
	if err != nil {
		_, err := req.Reply(ctx, "Usage: /preview Text or media URL [| Button]\n"+usageReason(err), nil)
		return err
	}
	if _, err := req.Adapter.SendMessage(ctx, req.Chat, msg.Outgoing(b.appURL())); err != nil {
		_, _ = req.Reply(ctx, "Preview error: "+err.Error(), nil)
		return err
	}
	return nil
}

func (b *Bot) handleSend(ctx context.Context, req *router.Request) error {
	msg, err := payload.Parse(req.ArgText)
	if err != nil {
		_, err := req.Reply(ctx, "Usage: /send Text or media URL [| Button]\n"+usageReason(err), nil)
		return err
	}

	adp, chat := req.Adapter, req.Chat
	h, err := b.engine.StartBroadcast(ctx, broadcast.Request{
		Message:   msg,
		Initiator: chat,
		OnDone: func(ctx context.Context, r broadcast.Result) {
			if _, err := adp.SendText(ctx, chat, resultText(r), nil); err != nil {
				b.log.Warn("broadcast report failed", logx.Err(err))
			}
		},
	})
	switch {
	case errors.Is(err, broadcast.ErrAlreadyInProgress):
		_, err = req.Reply(ctx, "A broadcast is already in progress.", nil)
		return err
	case errors.Is(err, broadcast.ErrRecallInProgress):
		_, err = req.Reply(ctx, "The last broadcast is being deleted. Try again when it finishes.", nil)
		return err
	case err != nil:
		return b.fail(ctx, req, "Could not start the broadcast.", err)
	}

	text := fmt.Sprintf("Broadcasting to %d users...", h.Remaining())
	if h.Resume > 0 {
		text = fmt.Sprintf("Resuming broadcast at %d of %d, %d users left...", h.Resume, h.Total, h.Remaining())
	}
	_, err = req.Reply(ctx, text, nil)
	return err
}

// usageReason drops the sentinel prefix from a parse error.
func usageReason(err error) string {
	return strings.TrimLeft(strings.TrimPrefix(err.Error(), payload.ErrInvalidPayload.Error()), ": \n")
}

func resultText(r broadcast.Result) string {
	p := r.Progress
	switch {
	case r.Completed:
		return fmt.Sprintf("Broadcast complete.\n\nDelivered: %d\nRemoved: %d\nFailed: %d\nTook: %s",
			p.Delivered, p.Pruned, p.Failed, r.Took.Round(time.Second))
	case r.Interrupted:
		return fmt.Sprintf("Broadcast interrupted after %d users. Send it again to resume.", p.Attempted)
	default:
		return fmt.Sprintf("Broadcast stopped after %d users: %v. Send it again to resume.", p.Attempted, r.Err)
	}
}

// handleDeleteAll runs the recall in the background; it can take far longer
// than a command may.
func (b *Bot) handleDeleteAll(ctx context.Context, req *router.Request) error {
	switch b.engine.Guard().State() {
	case broadcast.StateBroadcasting:
		_, err := req.Reply(ctx, "Cannot delete while broadcasting.", nil)
		return err
	case broadcast.StateRecalling:
		_, err := req.Reply(ctx, "Already deleting.", nil)
		return err
	}

	adp, chat, log := req.Adapter, req.Chat, req.Logger
	if _, err := req.Reply(ctx, "Deleting the last broadcast...", nil); err != nil {
		log.Warn("ack failed", logx.Err(err))
	}
	b.runner.Go0("bot.recall", func(ctx context.Context) {
		res, err := b.recaller.RecallLastBroadcast(ctx)
		text := fmt.Sprintf("Wiped. Deleted %d messages, %d could not be removed.", res.Processed-res.Failed, res.Failed)
		switch {
		case errors.Is(err, broadcast.ErrBroadcastInProgress):
			text = "Cannot delete while broadcasting."
		case errors.Is(err, broadcast.ErrRecallInProgress):
			text = "Already deleting."
		case err != nil:
			log.Warn("recall failed", logx.Err(err))
			text = fmt.Sprintf("Delete stopped after %d messages: %v", res.Processed, err)
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_, _ = adp.SendText(rctx, chat, text, nil)
	})
	return nil
}

func (b *Bot) handleStatus(ctx context.Context, req *router.Request) error {
	var sb strings.Builder
	sb.WriteString("State: " + b.engine.Guard().State().String())

	if h := b.engine.Current(); h != nil {
		p := h.Progress()
		fmt.Fprintf(&sb, "\n\nProgress: %d/%d (resumed at %d)\nDelivered: %d, removed: %d, failed: %d\nRunning for %s",
			h.Resume+p.Attempted, h.Total, h.Resume, p.Delivered, p.Pruned, p.Failed, time.Since(h.StartedAt).Round(time.Second))
	} else if h := b.engine.Last(); h != nil {
		if r, done := h.Result(); done {
			p := r.Progress
			fmt.Fprintf(&sb, "\n\nLast run %s\nDelivered: %d, removed: %d, failed: %d", runOutcome(r), p.Delivered, p.Pruned, p.Failed)
		}
	}

	cp, ok, err := broadcast.LoadCheckpoint(ctx, b.store)
	switch {
	case err != nil:
		fmt.Fprintf(&sb, "\nCheckpoint: unreadable (%v)", err)
	case ok:
		fmt.Fprintf(&sb, "\nCheckpoint: %d (saved %s)", cp.Offset, cp.UpdatedAt.Format(time.DateTime))
	default:
		sb.WriteString("\nCheckpoint: none")
	}
	_, err = req.Reply(ctx, sb.String(), nil)
	return err
}

func runOutcome(r broadcast.Result) string {
	switch {
	case r.Completed:
		return "completed"
	case r.Interrupted:
		return "interrupted"
	default:
		return "stopped"
	}
}

// fail tells the user something went wrong and returns err for the
// request log.
func (b *Bot) fail(ctx context.Context, req *router.Request, text string, err error) error {
	_, _ = req.Reply(ctx, text, nil)
	return err
}
