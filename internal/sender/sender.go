// Package sender runs the listing synchronization cycle: it re-scrapes the
// marketplace for every subscribed chat and delivers unseen listings exactly
// once per recipient.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kufar_bot/internal/kufar"
	"kufar_bot/internal/model"
	"kufar_bot/internal/storage"
)

// telegramAPI is the Telegram send surface the sender depends on.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender orchestrates one sync cycle per invocation.
type Sender struct {
	api      telegramAPI
	store    storage.Storage
	resolver *kufar.Resolver
	fetcher  *kufar.Fetcher
	log      *slog.Logger

	// sendPause throttles consecutive sends to stay under the Telegram
	// per-chat rate limit.
	sendPause time.Duration
}

// New creates a Sender with the default kufar HTTP plumbing.
func New(api telegramAPI, store storage.Storage, log *slog.Logger) *Sender {
	cache := kufar.NewCache()
	return NewWithClients(
		api, store,
		kufar.NewResolver(http.DefaultClient, cache, log),
		kufar.NewFetcher(http.DefaultClient),
		log,
	)
}

// NewWithClients creates a Sender with custom resolver and fetcher (useful
// for testing).
func NewWithClients(api telegramAPI, store storage.Storage, resolver *kufar.Resolver, fetcher *kufar.Fetcher, log *slog.Logger) *Sender {
	return &Sender{
		api:       api,
		store:     store,
		resolver:  resolver,
		fetcher:   fetcher,
		log:       log,
		sendPause: 50 * time.Millisecond,
	}
}

// RunCycle performs one full pass over all subscribers. Per-subscriber
// failures are logged and isolated; the cycle always completes.
func (s *Sender) RunCycle(ctx context.Context) {
	subs, err := s.store.ListSubscribed(ctx)
	if err != nil {
		s.log.Error("list subscribers", "error", err)
		return
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		s.processSubscriber(ctx, sub)
	}
}

func (s *Sender) processSubscriber(ctx context.Context, sub model.Subscriber) {
	if sub.FilterURL == nil {
		return
	}
	filterURL := *sub.FilterURL

	s.log.Debug("syncing subscriber", "chat_id", sub.ChatID)

	fm := s.resolver.Resolve(ctx, filterURL)

	query, err := kufar.BuildQuery(filterURL, fm)
	if err != nil {
		s.log.Error("build query", "chat_id", sub.ChatID, "url", filterURL, "error", err)
		return
	}
	if query.FreeText != "" {
		s.log.Warn("free-text fragment not carried over", "chat_id", sub.ChatID, "text", query.FreeText, "url", filterURL)
	}

	listings, err := s.fetcher.Fetch(ctx, query)
	if err != nil {
		// Transient marketplace errors skip the subscriber this cycle; the
		// subscription itself is kept.
		s.log.Error("fetch listings", "chat_id", sub.ChatID, "url", query.URL, "error", err)
		return
	}

	sent := 0
	for i := range listings {
		if ctx.Err() != nil {
			return
		}
		listing := &listings[i]

		wasSent, err := s.store.WasSent(ctx, listing.KufarID, sub.ChatID)
		if err != nil {
			s.log.Error("check delivery", "chat_id", sub.ChatID, "kufar_id", listing.KufarID, "error", err)
			continue
		}
		if wasSent {
			continue
		}

		if err := s.dispatch(sub.ChatID, listing); err != nil {
			if isForbidden(err) {
				// The recipient revoked bot access; drop the subscription so
				// the next cycle no longer targets them.
				s.log.Info("recipient blocked bot, unsubscribing", "chat_id", sub.ChatID)
				if err := s.store.ClearFilterURL(ctx, sub.ChatID); err != nil {
					s.log.Error("unsubscribe", "chat_id", sub.ChatID, "error", err)
				}
				return
			}
			// Delivery record stays unset so the listing is retried next cycle.
			s.log.Error("send listing", "chat_id", sub.ChatID, "kufar_id", listing.KufarID, "error", err)
			continue
		}

		if err := s.store.MarkSent(ctx, listing, sub.ChatID); err != nil {
			s.log.Error("mark sent", "chat_id", sub.ChatID, "kufar_id", listing.KufarID, "error", err)
		}
		sent++

		time.Sleep(s.sendPause)
	}

	if sent > 0 {
		s.log.Info("sent listings", "chat_id", sub.ChatID, "count", sent)
	}
}

// dispatch formats and sends one listing. The send completes before the
// caller persists the delivery flag.
func (s *Sender) dispatch(chatID int64, listing *model.Listing) error {
	text := FormatListing(listing)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("View", listing.AdLink),
		),
	)

	var msg tgbotapi.Chattable
	switch {
	case len(listing.Images) > 0:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(ImageURL(listing.Images[0])))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		photo.ReplyMarkup = markup
		msg = photo
	case listing.HasCoordinates():
		title := listing.Subject
		if title == "" {
			title = "Объявление"
		}
		venue := tgbotapi.NewVenue(chatID, title, priceLine(listing), *listing.Latitude, *listing.Longitude)
		venue.ReplyMarkup = markup
		msg = venue
	default:
		message := tgbotapi.NewMessage(chatID, text)
		message.ParseMode = tgbotapi.ModeHTML
		message.ReplyMarkup = markup
		msg = message
	}

	_, err := s.api.Send(msg)
	return err
}

func priceLine(l *model.Listing) string {
	return "$" + FormatPrice(l.PriceUSD) + ", или " + FormatPrice(l.PriceBYN) + " руб."
}

// isForbidden reports whether a Telegram delivery error means the recipient
// blocked the bot.
func isForbidden(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == http.StatusForbidden
}
