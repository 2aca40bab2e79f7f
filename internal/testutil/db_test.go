package testutil

import (
	"testing"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t)

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM resize_events").Scan(&n); err != nil {
		t.Fatalf("failed to query resize_events: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty resize_events in fresh DB, got %d", n)
	}
}

func TestNoiseImageIsSeeded(t *testing.T) {
	a := NoiseImage(16, 16, 42)
	b := NoiseImage(16, 16, 42)
	if string(a.Pix) != string(b.Pix) {
		t.Fatalf("expected identical noise for identical seeds")
	}
}
