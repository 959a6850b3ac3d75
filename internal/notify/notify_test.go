package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type recordingClient struct {
	mu    sync.Mutex
	sends []struct {
		to   transport.Target
		text string
	}
}

func (c *recordingClient) Name() string         { return "bot" }
func (c *recordingClient) Kind() transport.Kind { return transport.KindBot }
func (c *recordingClient) SizeCeiling() int64   { return 50 << 20 }

func (c *recordingClient) Send(_ context.Context, to transport.Target, m transport.Content) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, struct {
		to   transport.Target
		text string
	}{to, m.Payload})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (c *recordingClient) Delete(context.Context, transport.MessageRef) error { return nil }

func TestNotifySendsToOwner(t *testing.T) {
	t.Parallel()
	client := &recordingClient{}
	n := NewTelegram(client, 10, logx.Nop())
	p := &store.Post{ID: 3, Index: 2, UserID: 42, ChannelID: -100}

	n.Notify(context.Background(), p, store.StatusSent, nil)
	n.Notify(context.Background(), p, store.StatusFailed, errors.New("chat not found"))

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(client.sends))
	}
	for _, s := range client.sends {
		if s.to.ChatID != 42 {
			t.Fatalf("notification sent to %d, want user 42", s.to.ChatID)
		}
	}
	if !strings.Contains(client.sends[1].text, "chat not found") {
		t.Fatalf("failure notification lacks cause: %q", client.sends[1].text)
	}
}

func TestNotifySkipsUnrenderedStatuses(t *testing.T) {
	t.Parallel()
	client := &recordingClient{}
	n := NewTelegram(client, 10, logx.Nop())
	p := &store.Post{UserID: 42}

	n.Notify(context.Background(), p, store.StatusPending, nil)
	n.Notify(context.Background(), p, store.StatusInFlight, nil)

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sends) != 0 {
		t.Fatalf("sends = %d, want 0", len(client.sends))
	}
}

func TestNotifyRateLimit(t *testing.T) {
	t.Parallel()
	client := &recordingClient{}
	n := NewTelegram(client, 1, logx.Nop())
	p := &store.Post{UserID: 42}

	// Burst of one: the second immediate notification is dropped.
	n.Notify(context.Background(), p, store.StatusSent, nil)
	n.Notify(context.Background(), p, store.StatusSent, nil)

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(client.sends))
	}
}

func TestNopNotifier(t *testing.T) {
	t.Parallel()
	// Must tolerate nil post fields and never panic.
	Nop().Notify(context.Background(), &store.Post{}, store.StatusSent, nil)
}
