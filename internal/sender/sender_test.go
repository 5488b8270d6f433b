package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kufar_bot/internal/kufar"
	"kufar_bot/internal/storage"
)

// --- mocks ---

type mockAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
	// errFor returns the error for the n-th send (0-based); nil function or
	// nil result means success.
	errFor func(n int) error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	n := len(m.sent)
	m.sent = append(m.sent, c)
	m.mu.Unlock()
	if m.errFor != nil {
		if err := m.errFor(n); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

// marketTransport serves the listing page for page requests and the search
// response for API requests, like the real marketplace would.
func marketTransport(t *testing.T, pageStatus, apiStatus int) transportFunc {
	page := loadFixture(t, "../../testdata/listing_page.html")
	search := loadFixture(t, "../../testdata/search_response.json")
	return func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Host, "cre-api") {
			return respond(apiStatus, search), nil
		}
		return respond(pageStatus, page), nil
	}
}

func newTestSender(t *testing.T, api *mockAPI, transport kufar.HTTPClient) (*Sender, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewWithClients(
		api, store,
		kufar.NewResolver(transport, kufar.NewCache(), log),
		kufar.NewFetcher(transport),
		log,
	)
	s.sendPause = 0
	return s, store
}

func subscribe(t *testing.T, store *storage.SQLite, chatID int64, url string) {
	t.Helper()
	if err := store.SetFilterURL(context.Background(), chatID, url); err != nil {
		t.Fatalf("subscribe chat %d: %v", chatID, err)
	}
}

// --- tests ---

func TestRunCycleDeliversOnce(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	s, store := newTestSender(t, api, marketTransport(t, 200, 200))
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	if got := api.sendCount(); got != 3 {
		t.Fatalf("expected 3 sends after first cycle, got %d", got)
	}

	// Fixture listing 1001 has an image, 1002 has coordinates only, 1003 has
	// neither: the dispatcher picks photo, venue, and text respectively.
	if _, ok := api.sent[0].(tgbotapi.PhotoConfig); !ok {
		t.Errorf("send[0] = %T, want PhotoConfig", api.sent[0])
	}
	if _, ok := api.sent[1].(tgbotapi.VenueConfig); !ok {
		t.Errorf("send[1] = %T, want VenueConfig", api.sent[1])
	}
	if _, ok := api.sent[2].(tgbotapi.MessageConfig); !ok {
		t.Errorf("send[2] = %T, want MessageConfig", api.sent[2])
	}

	// A second pass with no new listings dispatches nothing.
	s.RunCycle(ctx)
	if got := api.sendCount(); got != 3 {
		t.Errorf("expected no new sends on second cycle, got %d total", got)
	}
}

func TestRunCyclePhotoCaption(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	s, store := newTestSender(t, api, marketTransport(t, 200, 200))
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	photo, ok := api.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("send[0] = %T, want PhotoConfig", api.sent[0])
	}
	if !strings.Contains(photo.Caption, "+375 (29) 123-45-67") {
		t.Errorf("caption missing formatted phone:\n%s", photo.Caption)
	}
	if !strings.Contains(photo.Caption, "$385.00, или 987.00 руб.") {
		t.Errorf("caption missing formatted prices:\n%s", photo.Caption)
	}
	if photo.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q, want HTML", photo.ParseMode)
	}
}

func TestRunCycleUnsubscribesOn403(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{
		errFor: func(int) error {
			return &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		},
	}
	s, store := newTestSender(t, api, marketTransport(t, 200, 200))
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	if got := api.sendCount(); got != 1 {
		t.Errorf("expected a single attempt before unsubscribing, got %d", got)
	}

	sub, err := store.GetSubscriber(ctx, 100)
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if sub.FilterURL != nil {
		t.Errorf("filter url = %q, want cleared", *sub.FilterURL)
	}

	sent, err := store.WasSent(ctx, 1001, 100)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("failed dispatch must not set the delivery flag")
	}

	// The unsubscribed chat is no longer targeted.
	s.RunCycle(ctx)
	if got := api.sendCount(); got != 1 {
		t.Errorf("expected no dispatches after unsubscription, got %d total", got)
	}
}

func TestRunCycleRetriesTransientSendFailure(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{
		errFor: func(n int) error {
			if n == 0 {
				return fmt.Errorf("telegram: internal server error")
			}
			return nil
		},
	}
	s, store := newTestSender(t, api, marketTransport(t, 200, 200))
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	// First listing failed, the other two were delivered and recorded.
	sent, err := store.WasSent(ctx, 1001, 100)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("failed listing must stay unrecorded for retry")
	}

	s.RunCycle(ctx)

	sent, err = store.WasSent(ctx, 1001, 100)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if !sent {
		t.Error("failed listing must be retried and recorded next cycle")
	}
	// 3 attempts first cycle + 1 retry.
	if got := api.sendCount(); got != 4 {
		t.Errorf("expected 4 sends across both cycles, got %d", got)
	}
}

func TestRunCycleIsolatesFetchFailures(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}

	page := loadFixture(t, "../../testdata/listing_page.html")
	search := loadFixture(t, "../../testdata/search_response.json")
	transport := transportFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Host, "cre-api") {
			// The first subscriber's saved search is broken server-side.
			if strings.Contains(req.Header.Get("Referer"), "rms=9") {
				return respond(500, "upstream unavailable"), nil
			}
			return respond(200, search), nil
		}
		return respond(200, page), nil
	})

	s, store := newTestSender(t, api, transport)
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=9")
	subscribe(t, store, 200, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	// Chat 100 is skipped this cycle but stays subscribed; chat 200 gets its
	// full delivery.
	if got := api.sendCount(); got != 3 {
		t.Errorf("expected 3 sends for the healthy subscriber, got %d", got)
	}
	sub, err := store.GetSubscriber(ctx, 100)
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if sub.FilterURL == nil {
		t.Error("fetch failure must not unsubscribe the chat")
	}
}

func TestRunCycleCompletesWithDefaultFilterMap(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	// Listing page resolution fails; the API still answers.
	s, store := newTestSender(t, api, marketTransport(t, 503, 200))
	subscribe(t, store, 100, "https://re.kufar.by/listings?rms=2")

	s.RunCycle(ctx)

	if got := api.sendCount(); got != 3 {
		t.Errorf("expected full delivery via default filter map, got %d sends", got)
	}
}
