package edc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagnoml/platform/pkg/common/config"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/common/retry"
	"github.com/diagnoml/platform/pkg/dataset"
	"github.com/diagnoml/platform/pkg/intake"
	"github.com/diagnoml/platform/pkg/monitoring"
	"github.com/diagnoml/platform/pkg/pseudonym"
	"github.com/diagnoml/platform/pkg/warehouse"
)

func floatPtr(v float64) *float64 { return &v }

func exportedRecord(first string) models.RawRecord {
	return models.RawRecord{
		Identity:          models.Identity{FirstName: first, LastName: "Mustermann", DateOfBirth: "1969-04-12"},
		Sex:               "f",
		AgeYears:          54,
		SmokingStatus:     "never",
		AlcoholStatus:     "never",
		DrugsStatus:       "never",
		SportLevel:        "low",
		SportHoursPerWeek: floatPtr(2),
		HbA1c:             5.4,
		CholesterolTotal:  190,
		CRP:               1.2,
	}
}

func edcServer(t *testing.T, records []models.RawRecord) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/studies/S_TEST/records" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("since") == "" {
			t.Error("missing since parameter")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"records": records})
	}))
}

func clientFor(server *httptest.Server) *Client {
	return NewClient(&config.Config{
		EDCBaseURL:  server.URL,
		EDCStudyOID: "S_TEST",
	})
}

func TestFetchValidatedRecords(t *testing.T) {
	server := edcServer(t, []models.RawRecord{exportedRecord("Erika"), exportedRecord("Max")})
	defer server.Close()

	records, err := clientFor(server).FetchValidatedRecords(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("fetched %d records, want 2", len(records))
	}
	if records[0].Identity.FirstName != "Erika" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
}

func TestFetchPropagatesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := clientFor(server).FetchValidatedRecords(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestPollerPullFeedsIntake(t *testing.T) {
	// One valid record and one the transformer must reject.
	invalid := exportedRecord("Bad")
	invalid.AgeYears = 12
	server := edcServer(t, []models.RawRecord{exportedRecord("Erika"), invalid})
	defer server.Close()

	store := warehouse.NewMemoryStore()
	svc := intake.NewService(
		pseudonym.NewService("study-salt", pseudonym.NewMemoryStore()),
		dataset.NewTransformer(),
		store,
		nil,
		monitoring.NewMemoryEmitter(),
		retry.None,
	)
	poller := NewPoller(clientFor(server), svc, time.Minute, retry.None)

	poller.pull(context.Background())

	got, err := store.Window(context.Background(), time.Time{}, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("persisted %d records, want 1 (invalid record dropped)", len(got))
	}
	if poller.lastPull.IsZero() {
		t.Fatal("pull did not advance the cursor")
	}
}
