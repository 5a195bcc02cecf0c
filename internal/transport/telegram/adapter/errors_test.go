package adapter

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

func TestClassifyForbiddenIsRecipientGone(t *testing.T) {
	t.Parallel()
	err := classify(&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"})
	if !kit.IsRecipientGone(err) {
		t.Fatalf("classify(403) = %v, want ErrRecipientGone", err)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	t.Parallel()
	base := errors.New("network down")
	if got := classify(base); got != base {
		t.Fatalf("classify = %v, want %v", got, base)
	}
	if got := classify(&tele.Error{Code: 400, Description: "Bad Request"}); kit.IsRecipientGone(got) {
		t.Fatalf("classify(400) reported recipient gone")
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}
