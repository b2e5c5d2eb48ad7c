package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"team-presence/database"
	"team-presence/pkg/common"
)

func newTestPresenceStore(t *testing.T) (*PresenceStore, sqlmock.Sqlmock) {
	pool, mock := newMockPool(t)
	return NewPresenceStore(pool, common.NopLogger{}), mock
}

func TestUpsertRejectsEmptyBatch(t *testing.T) {
	s, _ := newTestPresenceStore(t)

	err := s.Upsert(context.Background(), uuid.New(), nil)
	if !common.IsKind(err, common.KindValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestUpsertRejectsUnknownStatus(t *testing.T) {
	s, _ := newTestPresenceStore(t)

	err := s.Upsert(context.Background(), uuid.New(), []PresenceInput{
		{UserID: uuid.New(), Status: "present"},
		{UserID: uuid.New(), Status: "maybe"},
	})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Kind != common.KindValidation {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := appErr.Fields["presences[1].status"]; !ok {
		t.Errorf("Expected field presences[1].status, got %v", appErr.Fields)
	}
}

func TestUpsertMissingMatch(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(matchID).WillReturnRows(sqlmock.NewRows(matchCols))
	mock.ExpectRollback()

	err := s.Upsert(context.Background(), matchID, []PresenceInput{{UserID: uuid.New(), Status: "present"}})
	if !common.IsKind(err, common.KindNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
}

func TestUpsertWritesPairsInOrder(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()
	u1, u2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectLock(mock, matchID, futureDate, database.MatchStatusScheduled, false)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, match_id)")).
		WithArgs(u1, matchID, "present").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, match_id)")).
		WithArgs(u2, matchID, "absent").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Upsert(context.Background(), matchID, []PresenceInput{
		{UserID: u1, Status: "present"},
		{UserID: u2, Status: "absent"},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestUpsertRollsBackOnUnknownUser(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()
	u1, ghost := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectLock(mock, matchID, futureDate, database.MatchStatusScheduled, false)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, match_id)")).
		WithArgs(u1, matchID, "present").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, match_id)")).
		WithArgs(ghost, matchID, "absent").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "presences_user_id_fkey"})
	mock.ExpectRollback()

	err := s.Upsert(context.Background(), matchID, []PresenceInput{
		{UserID: u1, Status: "present"},
		{UserID: ghost, Status: "absent"},
	})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Kind != common.KindValidation {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if appErr.Fields["presences[1].userId"] != "user does not exist" {
		t.Errorf("Expected pair index in field detail, got %v", appErr.Fields)
	}
}

func TestSubmitOwnRequiresOpenWindow(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()

	mock.ExpectBegin()
	expectLock(mock, matchID, futureDate, database.MatchStatusScheduled, false)
	mock.ExpectRollback()

	err := s.SubmitOwn(context.Background(), matchID, uuid.New(), "present")
	if !common.IsKind(err, common.KindInvalidTransition) {
		t.Fatalf("Expected invalid transition, got %v", err)
	}
}

func TestSubmitOwnWhenOpen(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID, userID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectLock(mock, matchID, futureDate, database.MatchStatusScheduled, true)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO presences")).
		WithArgs(userID, matchID, "absent").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.SubmitOwn(context.Background(), matchID, userID, "absent"); err != nil {
		t.Fatalf("SubmitOwn failed: %v", err)
	}
}

func TestRosterDefaultsMissingToUnknown(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)")).
		WithArgs(matchID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN presences p")).
		WithArgs(matchID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "email", "role", "status", "updated_at"}).
			AddRow(uuid.New().String(), "Alice", "alice@example.com", "player", "present", fixedNow).
			AddRow(uuid.New().String(), "Bob", "bob@example.com", "player", "absent", fixedNow).
			AddRow(uuid.New().String(), "Chloe", "chloe@example.com", "coach", "unknown", nil).
			AddRow(uuid.New().String(), "Dan", "dan@example.com", "staff", "unknown", nil))

	roster, err := s.Roster(context.Background(), matchID)
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}

	want := database.RosterStats{Present: 1, Absent: 1, Unknown: 2, Total: 4}
	if roster.Stats != want {
		t.Errorf("Expected %+v, got %+v", want, roster.Stats)
	}
	if roster.Presences[2].UpdatedAt != nil {
		t.Errorf("Missing presence should have no timestamp")
	}
}

func TestRosterMissingMatch(t *testing.T) {
	s, mock := newTestPresenceStore(t)
	matchID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(matchID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := s.Roster(context.Background(), matchID)
	if !common.IsKind(err, common.KindNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
}

func TestComputeStatsIsComplete(t *testing.T) {
	entries := []database.RosterEntry{
		{Status: "present"}, {Status: "present"}, {Status: "absent"}, {Status: "unknown"}, {Status: ""},
	}
	stats := ComputeStats(entries)
	if stats.Present+stats.Absent+stats.Unknown != stats.Total || stats.Total != len(entries) {
		t.Errorf("Stats do not add up: %+v", stats)
	}
}
