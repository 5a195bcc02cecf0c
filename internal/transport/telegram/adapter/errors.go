package adapter

import (
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

// classify maps telebot errors onto the transport error contract.
//
// Telegram answers 403 for every "this chat will never accept messages from
// the bot" case (blocked, deactivated, kicked, never started), so the status
// code alone decides ErrRecipientGone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.RetryAfterError{After: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	var terr *tele.Error
	if errors.As(err, &terr) && terr.Code == 403 {
		return fmt.Errorf("%w: %w", kit.ErrRecipientGone, err)
	}
	return err
}
