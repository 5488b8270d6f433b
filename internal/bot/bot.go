// Package bot implements the Telegram command surface: saving and clearing a
// chat's search link and triggering manual sync cycles.
package bot

import (
	"context"
	"log/slog"
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kufar_bot/internal/config"
	"kufar_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// CycleRunner runs one listing sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context)
}

// filterLinkPattern matches a kufar listings URL with preselected filters.
var filterLinkPattern = regexp.MustCompile(`(?i)https://\w+\.kufar\.by/`)

// Bot handles user commands and saved-link updates.
type Bot struct {
	api    telegramAPI
	store  storage.Storage
	cfg    *config.Config
	runner CycleRunner
	log    *slog.Logger
}

// New creates a Bot on top of an existing Telegram API client.
func New(api *tgbotapi.BotAPI, store storage.Storage, cfg *config.Config, runner CycleRunner, log *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		store:  store,
		cfg:    cfg,
		runner: runner,
		log:    log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			if update.Message.IsCommand() {
				b.handleCommand(ctx, update.Message)
				continue
			}
			if filterLinkPattern.MatchString(update.Message.Text) {
				b.handleLink(ctx, update.Message.Chat.ID, update.Message.Text)
			}
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "stop":
		b.handleStop(ctx, chatID)
	case "check":
		b.handleCheck(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	sub, err := b.store.GetSubscriber(ctx, chatID)
	if err != nil || sub.FilterURL == nil {
		b.reply(chatID, "Please, send a link from the Kufar.by with preselected filters.")
		return
	}
	b.reply(chatID, "Current link is:\n\n"+*sub.FilterURL)
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	if err := b.store.ClearFilterURL(ctx, chatID); err != nil {
		b.log.Error("clear filter url", "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again.")
		return
	}
	b.reply(chatID, "Sorry if you were insulted by this bot, I've just tried to make this world a bit better.")
}

func (b *Bot) handleLink(ctx context.Context, chatID int64, text string) {
	if err := b.store.SetFilterURL(ctx, chatID, text); err != nil {
		b.log.Error("set filter url", "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again.")
		return
	}
	b.reply(chatID, "Thanks, the link has been updated.")
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	b.reply(chatID, "Checking for new listings...")
	b.runner.RunCycle(ctx)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Send a kufar.by listings link with preselected filters to subscribe.

/start — show the current saved link
/stop — unsubscribe
/check — check for new listings now
/help — this message`)
}
