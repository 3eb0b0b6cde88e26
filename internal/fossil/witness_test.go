package fossil

import (
	"testing"
	"time"
)

func TestValidClientsStrictlyAfter(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	witness := NewValidClients[string, string](ts)

	atBoundary := newArchive("a1", "client-at-boundary", ts)
	after := newArchive("a2", "client-after", ts.Add(time.Second))
	before := newArchive("a3", "client-before", ts.Add(-time.Second))

	witness.AddBorrowedArchive(atBoundary)
	witness.AddBorrowedArchive(after)
	witness.AddBorrowedArchive(before)

	if witness.Contains("client-at-boundary") {
		t.Fatal("an archive created exactly at the timestamp must not witness its creator")
	}
	if !witness.Contains("client-after") {
		t.Fatal("an archive created strictly after the timestamp must witness its creator")
	}
	if witness.Contains("client-before") {
		t.Fatal("an archive created before the timestamp must not witness its creator")
	}
}

func TestValidClientsOwnedAndBorrowedAgree(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	owned := NewValidClients[string, string](ts)
	borrowed := NewValidClients[string, string](ts)

	a := newArchive("a1", "client-x", ts.Add(time.Minute))
	owned.AddOwnedArchive(a)
	borrowed.AddBorrowedArchive(a)

	if owned.Contains("client-x") != borrowed.Contains("client-x") {
		t.Fatal("AddOwnedArchive and AddBorrowedArchive must agree on witness membership")
	}
}

func TestValidClientsTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	witness := NewValidClients[string, string](ts)
	if !witness.Timestamp().Equal(ts) {
		t.Fatalf("Timestamp() = %v, want %v", witness.Timestamp(), ts)
	}
}
