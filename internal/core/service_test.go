package core

import (
	"context"
	"testing"
	"time"

	"agrichain/internal/infra/persistence/memory"
	"agrichain/pkg/domain"
)

// newClockedService builds an in-memory service whose service and store
// clocks both follow the returned pointer.
func newClockedService(start time.Time) (*Service, *memory.Store, *time.Time) {
	now := new(time.Time)
	*now = start
	clock := func() time.Time { return *now }
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetClock(clock)
	svc := NewService(store, WithClock(clock))
	return svc, store, now
}

var testStart = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestCreateBatchInitializesInventory(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	batch, _, err := svc.CreateBatch(ctx, Batch{FarmerID: "F1", CropType: "maize", Quantity: 100, Unit: "kg"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	item, ok := svc.InventoryItemFor(batch.ID, "F1")
	if !ok {
		t.Fatal("inventory record not created with batch")
	}
	if item.ItemType != domain.ItemBatch || item.OwnerRole != RoleFarmer {
		t.Fatalf("inventory record mistyped: %+v", item)
	}
	if item.CurrentQuantity != 100 || item.InitialQuantity != 100 {
		t.Fatalf("quantities = %+v", item)
	}
	if len(item.StockHistory) != 1 || item.StockHistory[0].Action != domain.StockInitialized {
		t.Fatalf("history = %+v", item.StockHistory)
	}
}

func TestInventoryLifecycleScenario(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 100, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if avail, ok := svc.AvailableQuantity("BTH-1", "F1"); !ok || avail != 100 {
		t.Fatalf("available after init = %v %v", avail, ok)
	}

	if _, _, err := svc.ReserveStock(ctx, "BTH-1", "F1", 30, "ORD-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if avail, _ := svc.AvailableQuantity("BTH-1", "F1"); avail != 70 {
		t.Fatalf("available after reserve = %v", avail)
	}

	if _, _, err := svc.ReleaseReservedStock(ctx, "BTH-1", "F1", 30, "ORD-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if avail, _ := svc.AvailableQuantity("BTH-1", "F1"); avail != 100 {
		t.Fatalf("available after release = %v", avail)
	}

	item, _, err := svc.RecordSale(ctx, "BTH-1", "F1", 20, "P1", "ORD-2")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if item.CurrentQuantity != 80 || item.SoldQuantity != 20 {
		t.Fatalf("after sale = %+v", item)
	}
	if item.LowStockAlert {
		t.Fatal("alert set with 80 units remaining")
	}
}

func TestOversellClampsCurrentNotSold(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 80, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	item, _, err := svc.RecordSale(ctx, "BTH-1", "F1", 150, "P1", "ORD-1")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if item.CurrentQuantity != 0 {
		t.Fatalf("current = %v, want clamp to 0", item.CurrentQuantity)
	}
	if item.SoldQuantity != 150 {
		t.Fatalf("sold = %v, want unclamped 150", item.SoldQuantity)
	}
	if !item.LowStockAlert {
		t.Fatal("alert not set at zero stock")
	}
}

func TestReservedClampsAtZero(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 50, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, _, err := svc.ReserveStock(ctx, "BTH-1", "F1", 10, "ORD-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	item, _, err := svc.ReleaseReservedStock(ctx, "BTH-1", "F1", 40, "ORD-1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if item.ReservedQuantity != 0 {
		t.Fatalf("reserved = %v, want clamp to 0", item.ReservedQuantity)
	}
}

func TestLowStockAlertTracksEveryMutation(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 15, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	steps := []struct {
		name string
		run  func() (InventoryItem, Result, error)
	}{
		{"sale to 8", func() (InventoryItem, Result, error) { return svc.RecordSale(ctx, "BTH-1", "F1", 7, "", "") }},
		{"add to 12", func() (InventoryItem, Result, error) { return svc.AddStock(ctx, "BTH-1", "F1", 4, "restock") }},
		{"reserve", func() (InventoryItem, Result, error) { return svc.ReserveStock(ctx, "BTH-1", "F1", 5, "ORD-1") }},
		{"sale to 2", func() (InventoryItem, Result, error) { return svc.RecordSale(ctx, "BTH-1", "F1", 10, "", "") }},
		{"release", func() (InventoryItem, Result, error) { return svc.ReleaseReservedStock(ctx, "BTH-1", "F1", 5, "ORD-1") }},
	}
	for _, step := range steps {
		item, _, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		want := item.CurrentQuantity <= LowStockThreshold
		if item.LowStockAlert != want {
			t.Fatalf("%s: alert = %v with current %v", step.name, item.LowStockAlert, item.CurrentQuantity)
		}
	}
}

func TestReinitializeResetsHistory(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 100, "F1", RoleFarmer); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, _, err := svc.AddStock(ctx, "BTH-1", "F1", 20, "topup"); err != nil {
		t.Fatalf("add: %v", err)
	}

	item, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 50, "F1", RoleFarmer)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if item.CurrentQuantity != 50 || item.SoldQuantity != 0 {
		t.Fatalf("record not replaced: %+v", item)
	}
	if len(item.StockHistory) != 1 || item.StockHistory[0].Action != domain.StockInitialized {
		t.Fatalf("history not reset: %+v", item.StockHistory)
	}
}

func TestOverReservationWarnsButCommits(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 20, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	item, res, err := svc.ReserveStock(ctx, "BTH-1", "F1", 50, "ORD-1")
	if err != nil {
		t.Fatalf("over-reserve returned error: %v", err)
	}
	if item.ReservedQuantity != 50 {
		t.Fatalf("reserved = %v", item.ReservedQuantity)
	}
	warnings := res.Warnings()
	if len(warnings) == 0 {
		t.Fatal("expected reservation consistency warning")
	}
	if warnings[0].Rule != "reservation_consistency" {
		t.Fatalf("warning rule = %q", warnings[0].Rule)
	}
}

func TestMutateUnknownItemFails(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	if _, _, err := svc.AddStock(context.Background(), "missing", "F1", 5, ""); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestUserInventoryAndStatistics(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	seed := []struct {
		item  string
		qty   float64
		owner string
		role  Role
	}{
		{"B1", 100, "F1", RoleFarmer},
		{"B2", 5, "F1", RoleFarmer},
		{"B3", 0, "F1", RoleFarmer},
		{"P1", 30, "PR1", RoleProcessor},
	}
	for _, s := range seed {
		if _, _, err := svc.InitializeInventoryItem(ctx, s.item, domain.ItemBatch, s.qty, s.owner, s.role); err != nil {
			t.Fatalf("init %s: %v", s.item, err)
		}
	}

	if got := len(svc.UserInventory("F1", RoleFarmer)); got != 3 {
		t.Fatalf("farmer inventory size = %d", got)
	}
	if got := len(svc.LowStockItems("F1", RoleFarmer)); got != 2 {
		t.Fatalf("low stock count = %d", got)
	}

	stats := svc.InventoryStatistics("F1", RoleFarmer)
	if stats.TotalItems != 3 || stats.TotalCurrent != 105 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.LowStock != 2 || stats.OutOfStock != 1 {
		t.Fatalf("stats alert counts = %+v", stats)
	}
}
