package store

import (
	"context"
	"testing"
	"time"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func testMessage(id string, createdAt time.Time) *models.Message {
	return &models.Message{
		MessageID:        id,
		Sender:           "alice",
		Receiver:         "bob",
		EncryptedMessage: "ct",
		EncryptedKey:     "wk",
		IV:               "iv",
		Status:           models.StatusSent,
		CreatedAt:        createdAt,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := testMessage("m1", time.Now().UTC())
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	// Duplicate submission with different content must be a silent no-op
	dup := testMessage("m1", time.Now().UTC())
	dup.EncryptedMessage = "other"
	if err := s.UpsertMessage(ctx, dup); err != nil {
		t.Fatalf("duplicate upsert should not error: %v", err)
	}

	msgs, err := s.FindByParticipant(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(msgs))
	}
	if msgs[0].EncryptedMessage != "ct" {
		t.Fatal("first write should win")
	}
}

func TestStatusForwardOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, testMessage("m1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		apply models.Status
		want  models.Status
	}{
		{models.StatusDelivered, models.StatusDelivered},
		{models.StatusRead, models.StatusRead},
		// Late or replayed jobs must not regress the status
		{models.StatusSent, models.StatusRead},
		{models.StatusDelivered, models.StatusRead},
		{models.StatusRead, models.StatusRead},
	}

	for _, step := range steps {
		if err := s.UpdateStatus(ctx, "m1", step.apply); err != nil {
			t.Fatal(err)
		}
		msgs, _ := s.FindByParticipant(ctx, "alice")
		if msgs[0].Status != step.want {
			t.Fatalf("after applying %s: expected %s, got %s", step.apply, step.want, msgs[0].Status)
		}
	}
}

func TestUpdateStatusUnknownMessage(t *testing.T) {
	s := newTestStore(t)

	// Updating a message that was never stored is not an error; the
	// storeMessage job may simply not have been drained yet.
	if err := s.UpdateStatus(context.Background(), "ghost", models.StatusDelivered); err != nil {
		t.Fatal(err)
	}
}

func TestFindByParticipantOrderedAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order
	s.UpsertMessage(ctx, testMessage("m3", base.Add(2*time.Minute)))
	s.UpsertMessage(ctx, testMessage("m1", base))
	s.UpsertMessage(ctx, testMessage("m2", base.Add(time.Minute)))

	// A message alice received, not sent
	incoming := testMessage("m4", base.Add(3*time.Minute))
	incoming.Sender = "carol"
	incoming.Receiver = "alice"
	s.UpsertMessage(ctx, incoming)

	// Unrelated traffic must not appear
	other := testMessage("m5", base)
	other.Sender = "carol"
	other.Receiver = "dave"
	s.UpsertMessage(ctx, other)

	msgs, err := s.FindByParticipant(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"m1", "m2", "m3", "m4"}
	if len(msgs) != len(wantOrder) {
		t.Fatalf("expected %d messages, got %d", len(wantOrder), len(msgs))
	}
	for i, id := range wantOrder {
		if msgs[i].MessageID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, msgs[i].MessageID)
		}
	}
}

func TestFindByParticipantEmpty(t *testing.T) {
	s := newTestStore(t)

	msgs, err := s.FindByParticipant(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}
