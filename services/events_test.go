package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"team-presence/database"
	"team-presence/pkg/common"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestMultiPublisherFansOut(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{err: errors.New("broker down")}
	m := NewMultiPublisher(a, nil, b)

	err := m.Publish(context.Background(), NewEvent(EventMatchCreated, uuid.New(), nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("Expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("Expected both publishers to receive the event")
	}

	m.Close()
	if !a.closed || !b.closed {
		t.Errorf("Expected both publishers to be closed")
	}
}

func TestNotifySwallowsErrors(t *testing.T) {
	p := &recordingPublisher{err: errors.New("boom")}
	Notify(context.Background(), p, common.NopLogger{}, NewEvent(EventMatchDeleted, uuid.New(), nil))
	Notify(context.Background(), nil, common.NopLogger{}, NewEvent(EventMatchDeleted, uuid.New(), nil))

	if len(p.events) != 1 {
		t.Errorf("Expected one publish attempt, got %d", len(p.events))
	}
}

func TestReconnectBackoff(t *testing.T) {
	cfg := DefaultReconnectConfig()
	d := cfg.Next(0)
	if d != cfg.InitialDelay {
		t.Errorf("Expected initial delay, got %v", d)
	}
	for i := 0; i < 10; i++ {
		d = cfg.Next(d)
	}
	if d != cfg.MaxDelay {
		t.Errorf("Expected delay capped at %v, got %v", cfg.MaxDelay, d)
	}
}

func TestTeamNotifierPostsWhenWindowOpens(t *testing.T) {
	var got ChatMessage
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTeamNotifier(srv.URL, "https://team.example.com", common.NopLogger{})
	m := &database.Match{ID: uuid.New(), Opponent: "FC Rivals", Location: "Stade", Date: futureDate, PresenceOpen: true}

	if err := n.Publish(context.Background(), NewEvent(EventPresenceWindow, m.ID, m)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	closed := *m
	closed.PresenceOpen = false
	if err := n.Publish(context.Background(), NewEvent(EventPresenceWindow, m.ID, &closed)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := n.Publish(context.Background(), NewEvent(EventMatchCreated, m.ID, m)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("Expected exactly one webhook call, got %d", calls)
	}
	if got.MsgType != "post" {
		t.Errorf("Expected post message, got %q", got.MsgType)
	}
}

func TestTeamNotifierDisabled(t *testing.T) {
	n := NewTeamNotifier("", "", common.NopLogger{})
	m := &database.Match{ID: uuid.New(), PresenceOpen: true}
	if err := n.Publish(context.Background(), NewEvent(EventPresenceWindow, m.ID, m)); err != nil {
		t.Errorf("Disabled notifier should not fail: %v", err)
	}
}
