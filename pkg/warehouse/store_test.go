package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/diagnoml/platform/pkg/common/models"
)

func record(pid string, createdAt time.Time) models.MinimalRecord {
	return models.MinimalRecord{
		PID:         pid,
		Sex:         "f",
		AgeBand:     "46-60",
		CreatedAt:   createdAt,
		DataVersion: models.CurrentDataVersion,
	}
}

func TestWindowBounds(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, record("PID-A", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	// [from, to): the record exactly at `to` is excluded, the one at
	// `from` included.
	got, err := store.Window(ctx, base.Add(1*time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("window returned %d records, want 2", len(got))
	}
	if !got[0].CreatedAt.Equal(base.Add(1 * time.Hour)) {
		t.Fatalf("window start wrong: %v", got[0].CreatedAt)
	}
}

func TestLatestByPID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	store.Append(ctx, record("PID-A", base))
	store.Append(ctx, record("PID-B", base.Add(time.Hour)))
	store.Append(ctx, record("PID-A", base.Add(2*time.Hour)))

	latest, err := store.LatestByPID(ctx, "PID-A")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if !latest.CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("got record from %v, want latest", latest.CreatedAt)
	}

	if _, err := store.LatestByPID(ctx, "PID-X"); err != ErrRecordNotFound {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}
}

func TestBuildSnapshotJoinsLatestPerPID(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := record("PID-A", base)
	old.HbA1c = 5.0
	newer := record("PID-A", base.Add(time.Hour))
	newer.HbA1c = 7.0
	unlabeled := record("PID-B", base)

	feedback := []models.FeedbackRecord{
		{PID: "PID-A", Outcome: false, Timestamp: base},
		{PID: "PID-A", Outcome: true, Timestamp: base.Add(time.Hour)},
		{PID: "PID-C", Outcome: true, Timestamp: base}, // no record
	}

	snapshot := BuildSnapshot([]models.MinimalRecord{old, newer, unlabeled}, feedback)

	if snapshot.ID == "" || snapshot.TakenAt.IsZero() {
		t.Fatal("snapshot missing identity")
	}
	if len(snapshot.Examples) != 1 {
		t.Fatalf("snapshot has %d examples, want 1", len(snapshot.Examples))
	}

	ex := snapshot.Examples[0]
	if ex.Record.HbA1c != 7.0 {
		t.Fatalf("snapshot used stale record: %+v", ex.Record)
	}
	if !ex.Outcome {
		t.Fatal("snapshot used stale feedback")
	}
}

func TestBuildSnapshotEmptyInputs(t *testing.T) {
	snapshot := BuildSnapshot(nil, nil)
	if len(snapshot.Examples) != 0 {
		t.Fatalf("empty inputs produced %d examples", len(snapshot.Examples))
	}
}
