package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"team-presence/database"
	"team-presence/pkg/common"
)

type stubCloser struct {
	calls  atomic.Int32
	closed []database.Match
	err    error
}

func (c *stubCloser) CloseExpiredWindows(ctx context.Context) ([]database.Match, error) {
	c.calls.Add(1)
	return c.closed, c.err
}

func TestCloseExpiredWindows(t *testing.T) {
	s, mock := newTestMatchStore(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE matches SET presence_open = FALSE, updated_at = NOW\(\) WHERE presence_open AND date <= \$1 RETURNING`).
		WithArgs(fixedNow).
		WillReturnRows(sqlmock.NewRows(matchCols).AddRow(matchRow(id, pastDate, "scheduled", false)...))

	closed, err := s.CloseExpiredWindows(context.Background())
	if err != nil {
		t.Fatalf("CloseExpiredWindows failed: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != id || closed[0].PresenceOpen {
		t.Errorf("Unexpected result: %+v", closed)
	}
}

func TestSweeperPublishesClosedWindows(t *testing.T) {
	closer := &stubCloser{closed: []database.Match{{ID: uuid.New()}, {ID: uuid.New()}}}
	events := &recordingPublisher{}
	sweeper := NewWindowSweeper(closer, events, time.Hour, common.NopLogger{})

	if n := sweeper.RunOnce(context.Background()); n != 2 {
		t.Fatalf("RunOnce = %d, want 2", n)
	}
	if len(events.events) != 2 {
		t.Fatalf("Published %d events, want 2", len(events.events))
	}
	for i, e := range events.events {
		if e.Type != EventPresenceWindow || e.MatchID != closer.closed[i].ID {
			t.Errorf("Event %d = %s/%s", i, e.Type, e.MatchID)
		}
	}
}

func TestSweeperSurvivesStoreErrors(t *testing.T) {
	closer := &stubCloser{err: common.Unavailable(errors.New("connection refused"))}
	events := &recordingPublisher{}
	sweeper := NewWindowSweeper(closer, events, time.Hour, common.NopLogger{})

	if n := sweeper.RunOnce(context.Background()); n != 0 {
		t.Errorf("RunOnce = %d, want 0", n)
	}
	if len(events.events) != 0 {
		t.Errorf("Published %d events on error", len(events.events))
	}
}

func TestSweeperStartRunsImmediatelyAndStops(t *testing.T) {
	closer := &stubCloser{}
	sweeper := NewWindowSweeper(closer, nil, time.Hour, common.NopLogger{})

	sweeper.Start()
	sweeper.Start()

	deadline := time.Now().Add(2 * time.Second)
	for closer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sweeper.Stop()
	sweeper.Stop()

	if got := closer.calls.Load(); got != 1 {
		t.Errorf("CloseExpiredWindows called %d times, want 1", got)
	}
}
