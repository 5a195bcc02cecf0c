package adapter

import "time"

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (tests, local bot-api server).
	APIURL string
}
