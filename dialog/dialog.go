// Package dialog is the chat-platform integration. Stage handlers
// talk to chat exclusively through the Handler interface; the
// Telegram implementation lives in telegram.go.
package dialog

import (
	"context"
)

// Handler is a chat client for one handler invocation. The lifecycle
// is strict: Login, calls, Logout. Implementations must not accept
// SendMessage or any other call before Login returns, and a Handler
// is not shared across concurrent invocations.
type Handler interface {
	// Login connects to the chat platform with a bounded timeout.
	// It must be called before any other method.
	Login(ctx context.Context) error

	// SendMessage posts content to a channel and returns the platform
	// message id used for later deletion.
	SendMessage(ctx context.Context, channel, content string) (messageID string, err error)

	// DeleteMessage removes a previously sent message. Deleting a
	// message that is already gone is not an error.
	DeleteMessage(ctx context.Context, channel, messageID string) error

	// SendPoll posts a yes/no poll used for temperature checks and
	// returns its message id.
	SendPoll(ctx context.Context, channel, question string) (messageID string, err error)

	// ClosePoll stops a poll and returns the final yes/no tallies.
	ClosePoll(ctx context.Context, channel, messageID string) (yes, no int, err error)

	// Logout tears the connection down. Safe to call after a failed
	// Login.
	Logout(ctx context.Context) error
}

// Factory builds a fresh Handler per handler invocation. The chat
// connection is an invocation-scoped resource, created and torn down
// inside each stage handler, never pooled.
type Factory func() Handler
