package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/bot"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd bot.Command, r bot.Replier) bool
}

// API is the subset of *Client the transport needs.
type API interface {
	SendMessage(ctx context.Context, chatID, replyTo int64, text string) error
	SendPhoto(ctx context.Context, chatID, replyTo int64, png []byte, spoiler bool) error
	FetchPhoto(ctx context.Context, fileID string) ([]byte, error)
}

// Transport turns Bot API updates into bot commands.
type Transport struct {
	api        API
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewTransport(api API, d Dispatcher, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{api: api, dispatcher: d, logger: logger}
}

// HandleUpdate dispatches u when it carries a command. It reports whether it did.
func (t *Transport) HandleUpdate(ctx context.Context, u Update) bool {
	cmd, r, ok := t.toCommand(u)
	if !ok {
		return false
	}
	return t.dispatcher.Dispatch(ctx, cmd, r)
}

func (t *Transport) toCommand(u Update) (bot.Command, bot.Replier, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return bot.Command{}, nil, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if !strings.HasPrefix(strings.TrimSpace(text), "/") {
		return bot.Command{}, nil, false
	}

	cmd := bot.Command{
		UpdateID: strconv.FormatInt(u.UpdateID, 10),
		User: identity.RawUser{
			Handle:      m.From.Username,
			DisplayName: m.From.FullName(),
		},
		Chat: identity.RawChat{
			ExternalID: m.Chat.ID,
			Kind:       store.ChatKind(m.Chat.Type),
		},
		Text: text,
	}

	// a photo on the message itself wins over the one being replied to
	if p, ok := largestPhoto(m.Photo); ok {
		cmd.Image = &photoSource{api: t.api, fileID: p.FileID}
	} else if m.ReplyToMessage != nil {
		if p, ok := largestPhoto(m.ReplyToMessage.Photo); ok {
			cmd.Image = &photoSource{api: t.api, fileID: p.FileID}
		}
	}

	return cmd, &chatReplier{api: t.api, chatID: m.Chat.ID, replyTo: m.MessageID}, true
}

type photoSource struct {
	api    API
	fileID string
}

func (p *photoSource) Fetch(ctx context.Context) ([]byte, error) {
	return p.api.FetchPhoto(ctx, p.fileID)
}

// chatReplier answers in the originating chat, quoting the command message.
type chatReplier struct {
	api     API
	chatID  int64
	replyTo int64
}

func (r *chatReplier) SendText(ctx context.Context, text string) error {
	return r.api.SendMessage(ctx, r.chatID, r.replyTo, text)
}

func (r *chatReplier) SendPhoto(ctx context.Context, png []byte, spoiler bool) error {
	return r.api.SendPhoto(ctx, r.chatID, r.replyTo, png, spoiler)
}
