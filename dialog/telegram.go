package dialog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/logger"
)

// connectTimeout bounds the Login round trip. Login is a single
// awaited operation that either yields a ready client or fails; there
// is no readiness polling.
const connectTimeout = 15 * time.Second

// Telegram rate limits bots to roughly 30 messages per second overall
// and much lower per chat; one message per second with a small burst
// keeps rollups well inside both.
const (
	telegramRate  = rate.Limit(1)
	telegramBurst = 3
)

// Telegram implements Handler over the Telegram Bot API. Channels are
// chat ids in decimal string form; message ids are the Telegram
// message id, also as strings.
type Telegram struct {
	token   string
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewTelegram creates an unconnected Telegram handler. Login performs
// the actual connection.
func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		limiter: rate.NewLimiter(telegramRate, telegramBurst),
	}
}

// TelegramFactory returns a Factory producing fresh Telegram handlers
// for the given bot token.
func TelegramFactory(token string) Factory {
	return func() Handler { return NewTelegram(token) }
}

// Login connects and verifies the bot identity within connectTimeout.
func (t *Telegram) Login(ctx context.Context) error {
	if t.bot != nil {
		return nil
	}

	client := &http.Client{Timeout: connectTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return errors.Wrap(errors.ErrServiceUnavailable, err.Error())
	}

	t.bot = bot
	logger.Debugw("Chat client connected", "bot", bot.Self.UserName)
	return nil
}

// SendMessage posts Markdown content to a chat.
func (t *Telegram) SendMessage(ctx context.Context, channel, content string) (string, error) {
	chatID, err := parseChatID(channel)
	if err != nil {
		return "", err
	}
	if err := t.ready(ctx); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(chatID, content)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	sent, err := t.bot.Send(msg)
	if err != nil {
		return "", errors.Wrapf(err, "sending message to chat %s", channel)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// DeleteMessage removes a message. Telegram reports already-deleted
// messages as an error; that case is treated as success since the
// desired end state holds.
func (t *Telegram) DeleteMessage(ctx context.Context, channel, messageID string) error {
	chatID, err := parseChatID(channel)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return errors.Wrapf(err, "malformed message id %q", messageID)
	}
	if err := t.ready(ctx); err != nil {
		return err
	}

	_, err = t.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	if err != nil && !isMessageGone(err) {
		return errors.Wrapf(err, "deleting message %s in chat %s", messageID, channel)
	}
	return nil
}

// SendPoll posts an anonymous yes/no poll.
func (t *Telegram) SendPoll(ctx context.Context, channel, question string) (string, error) {
	chatID, err := parseChatID(channel)
	if err != nil {
		return "", err
	}
	if err := t.ready(ctx); err != nil {
		return "", err
	}

	poll := tgbotapi.NewPoll(chatID, question, "Yes", "No")
	poll.IsAnonymous = true

	sent, err := t.bot.Send(poll)
	if err != nil {
		return "", errors.Wrapf(err, "sending poll to chat %s", channel)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// ClosePoll stops the poll and reads the final option tallies.
func (t *Telegram) ClosePoll(ctx context.Context, channel, messageID string) (int, int, error) {
	chatID, err := parseChatID(channel)
	if err != nil {
		return 0, 0, err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed message id %q", messageID)
	}
	if err := t.ready(ctx); err != nil {
		return 0, 0, err
	}

	poll, err := t.bot.StopPoll(tgbotapi.NewStopPoll(chatID, msgID))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "closing poll %s in chat %s", messageID, channel)
	}

	var yes, no int
	for _, opt := range poll.Options {
		switch opt.Text {
		case "Yes":
			yes = opt.VoterCount
		case "No":
			no = opt.VoterCount
		}
	}
	return yes, no, nil
}

// Logout drops the connection. The Bot API is stateless over HTTP so
// this only releases the client.
func (t *Telegram) Logout(ctx context.Context) error {
	t.bot = nil
	return nil
}

// ready gates every call on a completed Login and the rate limiter.
func (t *Telegram) ready(ctx context.Context) error {
	if t.bot == nil {
		return errors.Wrap(errors.ErrServiceUnavailable, "chat client not logged in")
	}
	return t.limiter.Wait(ctx)
}

func parseChatID(channel string) (int64, error) {
	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return 0, errors.NewConfigError("malformed chat channel %q", channel)
	}
	return chatID, nil
}

func isMessageGone(err error) bool {
	return strings.Contains(err.Error(), "message to delete not found") ||
		strings.Contains(err.Error(), "message can't be deleted")
}
