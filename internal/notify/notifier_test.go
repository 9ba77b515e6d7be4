package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

type fakeSender struct {
	name  string
	err   error
	calls int
	title string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.calls++
	f.title = title
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func alert(typ domain.AlertType) domain.Alert {
	return domain.Alert{
		StrategyID: "strat-1",
		Type:       typ,
		Message:    "take profit reached",
		Timestamp:  time.Now().UTC(),
	}
}

func TestNotifyAlertDispatchesToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyAlert(context.Background(), alert(domain.AlertAutoClose)))
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
	require.Contains(t, a.title, "AUTO_CLOSE")
	require.Contains(t, a.title, "strat-1")
}

func TestNotifyAlertFiltersByType(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"auto_close", "loss"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyAlert(context.Background(), alert(domain.AlertProfit)))
	require.Zero(t, s.calls)

	require.NoError(t, n.NotifyAlert(context.Background(), alert(domain.AlertLoss)))
	require.Equal(t, 1, s.calls)
}

func TestNotifyAlertCollectsSenderFailures(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("rate limited")}
	healthy := &fakeSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := n.NotifyAlert(context.Background(), alert(domain.AlertLoss))
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
	// The healthy channel still got the alert.
	require.Equal(t, 1, healthy.calls)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "title", "message"))
	require.Equal(t, "application/json", gotContentType)
}

func TestDiscordSenderReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), "title", "message")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}
