package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

func TestEventStoreInsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewEventStoreWithDB(mock)
	now := time.Unix(1_700_000_000, 0).UTC()

	event := webhook.WebhookEvent{
		EventID:    "evt-1",
		SnapshotID: "snap-1",
		Platform:   webhook.PlatformInstagram,
		RawPayload: []byte(`[]`),
		Status:     webhook.EventPending,
		ReceivedAt: now,
	}

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(event.EventID, event.SnapshotID, event.Platform, event.RawPayload,
			event.Status, event.ReceivedAt, event.ErrorMessage).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Insert(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreClaimGuardsStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewEventStoreWithDB(mock)

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(webhook.EventProcessing, "evt-1", webhook.EventPending, webhook.EventFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.Claim(context.Background(), "evt-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreMarkFailed(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewEventStoreWithDB(mock)
	at := time.Unix(1_700_000_100, 0).UTC()

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(webhook.EventFailed, at, "storage unavailable", "evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkFailed(context.Background(), "evt-1", at, "storage unavailable"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreListReplayable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewEventStoreWithDB(mock)
	now := time.Unix(1_700_000_000, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"event_id", "snapshot_id", "platform", "raw_payload",
		"status", "received_at", "processed_at", "error_message",
	}).
		AddRow("evt-1", "snap-1", webhook.PlatformInstagram, []byte(`[]`),
			webhook.EventPending, now, (*time.Time)(nil), "").
		AddRow("evt-2", "snap-2", webhook.PlatformTikTok, []byte(`[]`),
			webhook.EventFailed, now.Add(time.Second), (*time.Time)(nil), "boom")

	mock.ExpectQuery("SELECT (.+) FROM webhook_events").
		WithArgs(webhook.EventPending, webhook.EventFailed, 10).
		WillReturnRows(rows)

	events, err := s.ListReplayable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-1", events[0].EventID)
	require.Equal(t, "boom", events[1].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}
