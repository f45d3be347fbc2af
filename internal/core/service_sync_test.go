package core

import (
	"context"
	"testing"

	"agrichain/pkg/domain"
)

func TestSyncInventoryWithCatalogCreatesMissing(t *testing.T) {
	svc, store, _ := newClockedService(testStart)
	ctx := context.Background()

	// Catalog records without inventory, as an imported snapshot would have.
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateBatch(Batch{Base: domain.Base{ID: "B1"}, FarmerID: "F1", Quantity: 40}); err != nil {
			return err
		}
		if _, err := tx.CreateProduct(Product{Base: domain.Base{ID: "PR1"}, ProcessorID: "P1", BatchID: "B1", Quantity: 25}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, _, err := svc.SyncInventoryWithCatalog(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d", len(created))
	}
	if item, ok := svc.InventoryItemFor("B1", "F1"); !ok || item.CurrentQuantity != 40 {
		t.Fatalf("batch inventory = %+v (%v)", item, ok)
	}
	if item, ok := svc.InventoryItemFor("PR1", "P1"); !ok || item.ItemType != domain.ItemProduct {
		t.Fatalf("product inventory = %+v (%v)", item, ok)
	}

	// Second pass finds nothing to do and never resets histories.
	if _, _, err := svc.AddStock(ctx, "B1", "F1", 5, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	created, _, err = svc.SyncInventoryWithCatalog(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("second sync created = %d", len(created))
	}
	item, _ := svc.InventoryItemFor("B1", "F1")
	if item.CurrentQuantity != 45 || len(item.StockHistory) != 2 {
		t.Fatalf("sync clobbered existing record: %+v", item)
	}
}

func TestSyncInventoryWithOrdersAppliesOnce(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "PRD-1", domain.ItemProduct, 100, "D1", RoleDistributor); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	order, _, err := svc.CreateConsumerOrder(ctx, "D1", "C1", "PRD-1", OrderInput{Quantity: 20, TotalAmount: 300})
	if err != nil {
		t.Fatalf("order: %v", err)
	}

	applied, _, err := svc.SyncInventoryWithOrders(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d", applied)
	}
	item, _ := svc.InventoryItemFor("PRD-1", "D1")
	if item.CurrentQuantity != 80 || item.SoldQuantity != 20 {
		t.Fatalf("after sync = %+v", item)
	}
	synced, _ := svc.FindOrder(order.ID)
	if synced.StockAppliedAt == nil {
		t.Fatal("stock applied marker not set")
	}

	// Re-running must not apply the sale twice.
	applied, _, err = svc.SyncInventoryWithOrders(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("second sync applied = %d", applied)
	}
	item, _ = svc.InventoryItemFor("PRD-1", "D1")
	if item.SoldQuantity != 20 {
		t.Fatalf("sale applied twice: %+v", item)
	}
}

func TestSyncInventoryWithOrdersSkipsPendingAndMissing(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	// Pending order: not yet eligible.
	pending, _, err := svc.CreateProcessingOrder(ctx, "F1", "P1", "BTH-1", OrderInput{Quantity: 10})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	applied, _, err := svc.SyncInventoryWithOrders(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied pending order: %d", applied)
	}

	// Confirmed but seller has no inventory record: skipped without a
	// marker so a later pass can still apply it.
	if _, _, err := svc.UpdateOrderStatus(ctx, pending.ID, OrderStatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	applied, _, err = svc.SyncInventoryWithOrders(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied without inventory record: %d", applied)
	}
	skipped, _ := svc.FindOrder(pending.ID)
	if skipped.StockAppliedAt != nil {
		t.Fatal("marker set for skipped order")
	}

	// Once the record exists the next pass picks the order up.
	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 50, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	applied, _, err = svc.SyncInventoryWithOrders(ctx)
	if err != nil {
		t.Fatalf("final sync: %v", err)
	}
	if applied != 1 {
		t.Fatalf("final sync applied = %d", applied)
	}
	item, _ := svc.InventoryItemFor("BTH-1", "F1")
	if item.CurrentQuantity != 40 || item.SoldQuantity != 10 {
		t.Fatalf("final state = %+v", item)
	}
}
