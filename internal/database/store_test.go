package claimstatedb

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBalanceRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.LoadBalance("alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := store.SaveBalance("alice", "owner1", 8, 0); err != nil {
		t.Fatalf("SaveBalance failed: %v", err)
	}
	if err := store.SaveBalance("alice", "owner1", 0, 8); err != nil {
		t.Fatalf("SaveBalance update failed: %v", err)
	}

	balance, err := store.LoadBalance("alice")
	if err != nil {
		t.Fatalf("LoadBalance failed: %v", err)
	}
	if balance.ClaimableUnits != 0 || balance.ClaimedUnits != 8 || balance.Owner != "owner1" {
		t.Errorf("unexpected balance %+v", balance)
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected one session, got %d", len(sessions))
	}
}

func TestReplaceActivity(t *testing.T) {
	store := openTestStore(t)

	first := []DailyActivity{{Date: "2024-03-02", Count: 3}, {Date: "2024-03-01", Count: 5}}
	if err := store.ReplaceActivity("alice", first); err != nil {
		t.Fatalf("ReplaceActivity failed: %v", err)
	}
	if err := store.ReplaceActivity("alice", []DailyActivity{{Date: "2024-04-01", Count: 1}}); err != nil {
		t.Fatalf("second ReplaceActivity failed: %v", err)
	}

	days, err := store.LoadActivity("alice")
	if err != nil {
		t.Fatalf("LoadActivity failed: %v", err)
	}
	if len(days) != 1 || days[0].Date != "2024-04-01" {
		t.Errorf("expected the histogram to be replaced, got %+v", days)
	}

	if err := store.ReplaceActivity("alice", first); err != nil {
		t.Fatalf("ReplaceActivity failed: %v", err)
	}
	days, _ = store.LoadActivity("alice")
	if len(days) != 2 || days[0].Date != "2024-03-01" {
		t.Errorf("expected days ordered by date, got %+v", days)
	}
}

func TestMarkCreditedOnce(t *testing.T) {
	store := openTestStore(t)

	attempt := &ClaimAttempt{ID: "a1", Session: "alice", Units: 8, State: "SUBMITTED", Signature: "sig"}
	if err := store.CreateAttempt(attempt); err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	credited, err := store.MarkCredited("a1")
	if err != nil || !credited {
		t.Fatalf("first MarkCredited = %v, %v", credited, err)
	}
	credited, err = store.MarkCredited("a1")
	if err != nil || credited {
		t.Errorf("second MarkCredited = %v, %v, want false", credited, err)
	}

	got, err := store.GetAttempt("a1")
	if err != nil {
		t.Fatalf("GetAttempt failed: %v", err)
	}
	if !got.Credited || got.State != "CONFIRMED" {
		t.Errorf("unexpected attempt %+v", got)
	}

	if _, err := store.GetAttempt("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Error("expected unknown driver to be rejected")
	}
}
