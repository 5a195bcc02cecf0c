package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrRecipientGone marks a delivery failure that will never succeed for this
// recipient (blocked the bot, deactivated account, removed from chat).
var ErrRecipientGone = errors.New("recipient permanently unreachable")

// RetryAfterError is returned when the platform asks the caller to back off.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// IsRecipientGone reports whether err classifies the recipient as gone.
func IsRecipientGone(err error) bool {
	return errors.Is(err, ErrRecipientGone)
}

// RetryAfter extracts the back-off hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		return ra.After, true
	}
	return 0, false
}
