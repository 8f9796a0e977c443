package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"reefcontrol/internal/models"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestAppend_FillsDefaults(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := NewEventSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta(`
			INSERT INTO device_events (id, occurred_at, kind, previous, next, cause, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(),
			"HEATER", "off", "on", "tick",
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(testCtx(t), models.DeviceEvent{
		// EventID empty -> repo generates
		// OccurredAt zero -> repo sets UTC now
		Kind:     " heater ",
		Previous: "off",
		Next:     "on",
		Cause:    "tick",
		Metadata: map[string]any{"zone": "water"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := NewEventSQLite(db)

	mock.ExpectExec("INSERT INTO device_events").
		WillReturnError(errors.New("down"))

	err := repo.Append(testCtx(t), models.DeviceEvent{Kind: "FAN"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestList_NoFilters(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := NewEventSQLite(db)

	at := time.Date(2026, 8, 17, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "occurred_at", "kind", "previous", "next", "cause", "meta"}).
		AddRow("id-1", at, "LIGHT", "off", "on", "schedule", `{"day":"monday"}`).
		AddRow("id-2", at.Add(time.Minute), "FAN", "off", "on", "threshold", nil)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, occurred_at, kind, previous, next, cause, meta FROM device_events ORDER BY occurred_at ASC`,
	)).WillReturnRows(rows)

	events, err := repo.List(testCtx(t), time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != "LIGHT" || events[1].Kind != "FAN" {
		t.Fatalf("unexpected kinds: %+v", events)
	}
	meta, ok := events[0].Metadata.(map[string]any)
	if !ok || meta["day"] != "monday" {
		t.Fatalf("metadata not decoded: %#v", events[0].Metadata)
	}
	if events[1].Metadata != nil {
		t.Fatalf("nil meta decoded to %#v", events[1].Metadata)
	}
}

func TestList_AllFilters(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := NewEventSQLite(db)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, occurred_at, kind, previous, next, cause, meta FROM device_events WHERE occurred_at >= ? AND occurred_at <= ? AND kind = ? ORDER BY occurred_at ASC`,
	)).
		WithArgs(from, to, "DOSE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "kind", "previous", "next", "cause", "meta"}))

	events, err := repo.List(testCtx(t), from, to, " dose ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
