package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// telegram rejects longer messages
const maxMessageLen = 4000

// Telegram posts events to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram connects to the Bot API. endpoint may be empty for the public API.
func NewTelegram(token string, chatID int64, endpoint string) (*Telegram, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	logger := log.With().Str("component", "telegram").Logger()
	logger.Info().Str("bot", bot.Self.UserName).Int64("chat_id", chatID).Msg("Telegram notifier ready")
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

func (t *Telegram) Notify(ctx context.Context, ev Event) error {
	if len(ev.Records) == 0 {
		return nil
	}
	for _, chunk := range split(Format(ev), maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, chunk)); err != nil {
			t.logger.Error().Err(err).Msg("Failed to send message")
			return fmt.Errorf("sending telegram message: %w", err)
		}
	}
	t.logger.Debug().Str("kind", string(ev.Kind)).Int("records", len(ev.Records)).Msg("Message sent")
	return nil
}

func (t *Telegram) Close() error { return nil }

// split breaks text on line boundaries into pieces no longer than limit.
func split(text string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(text, "\n") {
		if len(line) > limit {
			line = truncate(line, limit)
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
