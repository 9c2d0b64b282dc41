package bot

import (
	"context"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/identity"
)

const (
	CmdStart     = "/start"
	CmdHelp      = "/help"
	CmdPicgen    = "/picgen"
	CmdTeach     = "/teach"
	CmdForget    = "/forget"
	CmdMyWords   = "/mywords"
	CmdVariation = "/variation"
	CmdSafeMode  = "/safemode"
)

var knownCommands = map[string]bool{
	CmdStart: true, CmdHelp: true, CmdPicgen: true, CmdTeach: true,
	CmdForget: true, CmdMyWords: true, CmdVariation: true, CmdSafeMode: true,
}

// ImageSource lazily fetches the photo a command refers to.
type ImageSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Replier sends replies back into the chat the command came from.
type Replier interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, png []byte, spoiler bool) error
}

// Command is one inbound chat message, already stripped of transport details.
type Command struct {
	// UpdateID is the transport's delivery id, used to drop redeliveries.
	UpdateID string
	// RequestID is assigned by the dispatcher.
	RequestID string

	User identity.RawUser
	Chat identity.RawChat
	Text string
	// Image is the attached or replied-to photo, nil when there is none.
	Image ImageSource
}

// parseCommand splits the leading command token off text. The token may carry a
// @botname suffix; commands addressed to another bot are not ours.
func parseCommand(text, botName string) (name string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name, target, addressed := strings.Cut(fields[0], "@")
	if addressed && (botName == "" || !strings.EqualFold(target, botName)) {
		return "", false
	}
	if !knownCommands[name] {
		return "", false
	}
	return name, true
}

// extractArgs drops the leading command token and every mention of the bot.
func extractArgs(text, botName string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		if i := strings.IndexFunc(text, isSpace); i >= 0 {
			text = text[i:]
		} else {
			text = ""
		}
	}
	if botName != "" {
		text = removeMentions(text, "@"+botName)
	}
	return strings.TrimSpace(text)
}

// removeMentions deletes mention wherever it is not followed by more of a username,
// so @picgenbot2 survives when removing @picgenbot.
func removeMentions(text, mention string) string {
	var b strings.Builder
	for {
		i := indexFold(text, mention)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := i + len(mention)
		if end < len(text) && isUsernameByte(text[end]) {
			b.WriteString(text[:end])
		} else {
			b.WriteString(text[:i])
		}
		text = text[end:]
	}
}

func isUsernameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
