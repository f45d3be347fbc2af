package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"agrichain/pkg/domain"
)

// The snapshot SQL sticks to portable constructs, so the store's persistence
// path can run against an embedded database handle in tests.
func openEmbedded(t *testing.T) func() {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	return OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	restore := openEmbedded(t)
	defer restore()
	ctx := context.Background()

	store, err := NewStore("unused-dsn", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{Base: domain.Base{ID: "B1"}, FarmerID: "F1", CropType: "tea", Quantity: 12}); err != nil {
			return err
		}
		_, err := tx.PutInventoryItem(domain.InventoryItem{
			ItemID:          "B1",
			OwnerID:         "F1",
			ItemType:        domain.ItemBatch,
			OwnerRole:       domain.RoleFarmer,
			CurrentQuantity: 12,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore("unused-dsn", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	batch, ok := reopened.FindBatch("B1")
	if !ok || batch.CropType != "tea" {
		t.Fatalf("batch not restored: %+v", batch)
	}
	item, ok := reopened.FindInventoryItem("B1", "F1")
	if !ok || item.CurrentQuantity != 12 {
		t.Fatalf("inventory not restored: %+v", item)
	}
}

func TestFailedTransactionNotSnapshotted(t *testing.T) {
	restore := openEmbedded(t)
	defer restore()
	ctx := context.Background()

	store, err := NewStore("unused-dsn", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{Base: domain.Base{ID: "B1"}}); err != nil {
			return err
		}
		return context.Canceled
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore("unused-dsn", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, ok := reopened.FindBatch("B1"); ok {
		t.Fatal("rolled back batch was snapshotted")
	}
}

func TestOpenErrorPropagates(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, fmt.Errorf("refused")
	})
	defer restore()

	if _, err := NewStore("unused-dsn", nil); err == nil {
		t.Fatal("expected open error")
	}
}
