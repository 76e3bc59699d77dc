package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"memoriae/internal/config"
	"memoriae/internal/memoriae"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("Migrate() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCreation(id, seedID string, offset time.Duration) memoriae.Transaction {
	return memoriae.Transaction{
		ID:        id,
		SubjectID: seedID,
		Type:      memoriae.TypeCreateSeed,
		Data:      json.RawMessage(`{"content":"hello"}`),
		CreatedAt: testEpoch.Add(offset),
	}
}

func TestSQLiteStore_SeedLedgerRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSeed(ctx, seedCreation("tx-1", "seed-1", 0)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	edit := memoriae.Transaction{
		ID:           "tx-2",
		SubjectID:    "seed-1",
		Type:         memoriae.TypeEditContent,
		Data:         json.RawMessage(`{"content":"updated"}`),
		CreatedAt:    testEpoch.Add(time.Minute),
		AutomationID: "wikipedia-bot",
	}
	if err := store.AppendSeedTransaction(ctx, edit); err != nil {
		t.Fatalf("AppendSeedTransaction() error: %v", err)
	}

	txs, err := store.SeedTransactions(ctx, "seed-1")
	if err != nil {
		t.Fatalf("SeedTransactions() error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	if txs[0].ID != "tx-1" || txs[1].ID != "tx-2" {
		t.Errorf("transaction order = [%s, %s], want [tx-1, tx-2]", txs[0].ID, txs[1].ID)
	}
	if txs[0].AutomationID != "" {
		t.Errorf("txs[0].AutomationID = %q, want empty", txs[0].AutomationID)
	}
	if txs[1].AutomationID != "wikipedia-bot" {
		t.Errorf("txs[1].AutomationID = %q, want %q", txs[1].AutomationID, "wikipedia-bot")
	}
	if string(txs[1].Data) != `{"content":"updated"}` {
		t.Errorf("txs[1].Data = %s", txs[1].Data)
	}
}

func TestSQLiteStore_SeedTransactionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSeed(ctx, seedCreation("tx-b", "seed-1", 0)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	// Same timestamp: rows must come back ordered by id.
	for _, id := range []string{"tx-d", "tx-a", "tx-c"} {
		tx := memoriae.Transaction{
			ID:        id,
			SubjectID: "seed-1",
			Type:      memoriae.TypeEditContent,
			Data:      json.RawMessage(`{"content":"x"}`),
			CreatedAt: testEpoch.Add(time.Minute),
		}
		if err := store.AppendSeedTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendSeedTransaction(%s) error: %v", id, err)
		}
	}

	txs, err := store.SeedTransactions(ctx, "seed-1")
	if err != nil {
		t.Fatalf("SeedTransactions() error: %v", err)
	}

	want := []string{"tx-b", "tx-a", "tx-c", "tx-d"}
	for i, id := range want {
		if txs[i].ID != id {
			t.Errorf("txs[%d].ID = %s, want %s", i, txs[i].ID, id)
		}
	}
}

func TestSQLiteStore_SeedNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SeedTransactions(context.Background(), "missing")
	if !errors.Is(err, memoriae.ErrSeedNotFound) {
		t.Errorf("SeedTransactions() error = %v, want ErrSeedNotFound", err)
	}
}

func TestSQLiteStore_CreateSeedRequiresCreationType(t *testing.T) {
	store := newTestStore(t)

	tx := memoriae.Transaction{
		ID:        "tx-1",
		SubjectID: "seed-1",
		Type:      memoriae.TypeEditContent,
		CreatedAt: testEpoch,
	}
	if err := store.CreateSeed(context.Background(), tx); err == nil {
		t.Error("CreateSeed() with edit_content expected error")
	}
}

func TestSQLiteStore_AppendRejectsUnknownSubject(t *testing.T) {
	store := newTestStore(t)

	tx := memoriae.Transaction{
		ID:        "tx-1",
		SubjectID: "no-such-seed",
		Type:      memoriae.TypeEditContent,
		Data:      json.RawMessage(`{}`),
		CreatedAt: testEpoch,
	}
	if err := store.AppendSeedTransaction(context.Background(), tx); err == nil {
		t.Error("AppendSeedTransaction() expected foreign key error for unknown seed")
	}
}

func TestSQLiteStore_ListSeedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSeed(ctx, seedCreation("tx-1", "seed-b", 0)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}
	if err := store.CreateSeed(ctx, seedCreation("tx-2", "seed-a", time.Hour)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	ids, err := store.ListSeedIDs(ctx)
	if err != nil {
		t.Fatalf("ListSeedIDs() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "seed-b" || ids[1] != "seed-a" {
		t.Errorf("ListSeedIDs() = %v, want [seed-b seed-a] (oldest first)", ids)
	}
}

func TestSQLiteStore_TagLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creation := memoriae.Transaction{
		ID:        "ttx-1",
		SubjectID: "tag-1",
		Type:      memoriae.TypeCreateTag,
		Data:      json.RawMessage(`{"name":"golang"}`),
		CreatedAt: testEpoch,
	}
	if err := store.CreateTag(ctx, creation); err != nil {
		t.Fatalf("CreateTag() error: %v", err)
	}

	rename := memoriae.Transaction{
		ID:        "ttx-2",
		SubjectID: "tag-1",
		Type:      memoriae.TypeEditTag,
		Data:      json.RawMessage(`{"name":"go"}`),
		CreatedAt: testEpoch.Add(time.Minute),
	}
	if err := store.AppendTagTransaction(ctx, rename); err != nil {
		t.Fatalf("AppendTagTransaction() error: %v", err)
	}

	txs, err := store.TagTransactions(ctx, "tag-1")
	if err != nil {
		t.Fatalf("TagTransactions() error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}

	ids, err := store.ListTagIDs(ctx)
	if err != nil {
		t.Fatalf("ListTagIDs() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "tag-1" {
		t.Errorf("ListTagIDs() = %v, want [tag-1]", ids)
	}

	if _, err := store.TagTransactions(ctx, "missing"); !errors.Is(err, memoriae.ErrTagNotFound) {
		t.Errorf("TagTransactions() error = %v, want ErrTagNotFound", err)
	}
}

func TestSQLiteStore_SproutLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSeed(ctx, seedCreation("tx-1", "seed-1", 0)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	sprout := memoriae.Sprout{
		ID:        "sprout-1",
		SeedID:    "seed-1",
		Kind:      memoriae.SproutFollowup,
		Title:     "Check sources",
		CreatedAt: testEpoch.Add(time.Minute),
	}
	creation := memoriae.Transaction{
		ID:        "stx-1",
		SubjectID: "sprout-1",
		Type:      memoriae.TypeCreateSprout,
		Data:      json.RawMessage(`{"seed_id":"seed-1","kind":"followup","title":"Check sources"}`),
		CreatedAt: testEpoch.Add(time.Minute),
	}
	marker := memoriae.Transaction{
		ID:        "tx-2",
		SubjectID: "seed-1",
		Type:      memoriae.TypeAddSprout,
		Data:      json.RawMessage(`{"sprout_id":"sprout-1","kind":"followup"}`),
		CreatedAt: testEpoch.Add(time.Minute),
	}

	if err := store.CreateSprout(ctx, sprout, creation, &marker); err != nil {
		t.Fatalf("CreateSprout() error: %v", err)
	}

	t.Run("marker lands in the seed ledger", func(t *testing.T) {
		txs, err := store.SeedTransactions(ctx, "seed-1")
		if err != nil {
			t.Fatalf("SeedTransactions() error: %v", err)
		}
		if len(txs) != 2 || txs[1].Type != memoriae.TypeAddSprout {
			t.Errorf("seed ledger = %d entries, last type %s; want 2 entries ending in add_sprout", len(txs), txs[len(txs)-1].Type)
		}
	})

	t.Run("sprout ledger holds the creation", func(t *testing.T) {
		txs, err := store.SproutTransactions(ctx, "sprout-1")
		if err != nil {
			t.Fatalf("SproutTransactions() error: %v", err)
		}
		if len(txs) != 1 || txs[0].Type != memoriae.TypeCreateSprout {
			t.Fatalf("sprout ledger = %v", txs)
		}
	})

	t.Run("registry lookups", func(t *testing.T) {
		found, err := store.FindSprout(ctx, "sprout-1")
		if err != nil {
			t.Fatalf("FindSprout() error: %v", err)
		}
		if found.SeedID != "seed-1" || found.Kind != memoriae.SproutFollowup {
			t.Errorf("FindSprout() = %+v", found)
		}

		list, err := store.SproutsForSeed(ctx, "seed-1")
		if err != nil {
			t.Fatalf("SproutsForSeed() error: %v", err)
		}
		if len(list) != 1 || list[0].ID != "sprout-1" {
			t.Errorf("SproutsForSeed() = %v", list)
		}
	})

	t.Run("not found sentinels", func(t *testing.T) {
		if _, err := store.FindSprout(ctx, "missing"); !errors.Is(err, memoriae.ErrSproutNotFound) {
			t.Errorf("FindSprout() error = %v, want ErrSproutNotFound", err)
		}
		if _, err := store.SproutTransactions(ctx, "missing"); !errors.Is(err, memoriae.ErrSproutNotFound) {
			t.Errorf("SproutTransactions() error = %v, want ErrSproutNotFound", err)
		}
	})
}

func TestSQLiteStore_CreateSproutWithoutMarker(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSeed(ctx, seedCreation("tx-1", "seed-1", 0)); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	sprout := memoriae.Sprout{
		ID:        "sprout-1",
		SeedID:    "seed-1",
		Kind:      memoriae.SproutMusing,
		CreatedAt: testEpoch.Add(time.Minute),
	}
	creation := memoriae.Transaction{
		ID:        "stx-1",
		SubjectID: "sprout-1",
		Type:      memoriae.TypeCreateSprout,
		Data:      json.RawMessage(`{"seed_id":"seed-1","kind":"musing"}`),
		CreatedAt: testEpoch.Add(time.Minute),
	}

	if err := store.CreateSprout(ctx, sprout, creation, nil); err != nil {
		t.Fatalf("CreateSprout() error: %v", err)
	}

	// Restore path: the seed ledger must stay untouched.
	txs, err := store.SeedTransactions(ctx, "seed-1")
	if err != nil {
		t.Fatalf("SeedTransactions() error: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("seed ledger has %d entries, want 1", len(txs))
	}
}

func TestSQLiteStore_EmptyDataDefaultsToObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creation := seedCreation("tx-1", "seed-1", 0)
	creation.Data = nil
	if err := store.CreateSeed(ctx, creation); err != nil {
		t.Fatalf("CreateSeed() error: %v", err)
	}

	txs, err := store.SeedTransactions(ctx, "seed-1")
	if err != nil {
		t.Fatalf("SeedTransactions() error: %v", err)
	}
	if string(txs[0].Data) != "{}" {
		t.Errorf("Data = %s, want {}", txs[0].Data)
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory store is migrated", func(t *testing.T) {
		store, err := NewStoreFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error: %v", err)
		}
		defer store.Close()

		if err := store.CreateSeed(context.Background(), seedCreation("tx-1", "seed-1", 0)); err != nil {
			t.Errorf("CreateSeed() on memory store error: %v", err)
		}
	})

	t.Run("sqlite requires data_dir", func(t *testing.T) {
		_, err := NewStoreFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewStoreFromConfig(config.DatabaseConfig{Type: "postgres"})
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type")
		}
	})
}
