package core

import (
	"context"
	"fmt"

	"agrichain/pkg/domain"
)

// InventoryStats aggregates one owner's stock position.
type InventoryStats struct {
	TotalItems    int     `json:"total_items"`
	TotalCurrent  float64 `json:"total_current"`
	TotalReserved float64 `json:"total_reserved"`
	TotalSold     float64 `json:"total_sold"`
	LowStock      int     `json:"low_stock"`
	OutOfStock    int     `json:"out_of_stock"`
}

// initializeInventory builds and upserts a fresh inventory record inside tx.
// Any existing record for the composite key is replaced and its history reset.
func (s *Service) initializeInventory(tx Transaction, itemID string, itemType ItemType, qty float64, ownerID string, ownerRole Role) (InventoryItem, error) {
	item := InventoryItem{
		ItemID:          itemID,
		OwnerID:         ownerID,
		ItemType:        itemType,
		OwnerRole:       ownerRole,
		InitialQuantity: qty,
		CurrentQuantity: qty,
		StockHistory: []domain.StockEvent{{
			Action:    domain.StockInitialized,
			Quantity:  qty,
			Timestamp: s.now(),
		}},
	}
	item.RecomputeAlert()
	return tx.PutInventoryItem(item)
}

// InitializeInventoryItem upserts the inventory record for (itemID, ownerID).
// Re-initialization replaces the record wholesale and resets its history to a
// single "initialized" entry.
func (s *Service) InitializeInventoryItem(ctx context.Context, itemID string, itemType ItemType, qty float64, ownerID string, ownerRole Role) (InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "initialize_inventory_item")
	var item InventoryItem
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		item, err = s.initializeInventory(tx, itemID, itemType, qty, ownerID, ownerRole)
		if err != nil {
			return err
		}
		return s.maybeLowStockAlert(tx, item)
	})
	done(err)
	return item, res, err
}

// AddStock increments current stock for (itemID, ownerID).
func (s *Service) AddStock(ctx context.Context, itemID, ownerID string, qty float64, note string) (InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "add_stock")
	item, res, err := s.mutateInventory(ctx, itemID, ownerID, domain.StockAdded, qty, note, func(i *InventoryItem) {
		i.CurrentQuantity += qty
	})
	done(err)
	return item, res, err
}

// RecordSale applies a sale against (itemID, ownerID). Current stock is
// clamped at zero while sold quantity grows by the full requested amount.
func (s *Service) RecordSale(ctx context.Context, itemID, ownerID string, qty float64, buyerID, orderID string) (InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "record_sale")
	note := saleNote(buyerID, orderID)
	item, res, err := s.mutateInventory(ctx, itemID, ownerID, domain.StockSale, qty, note, applySale(qty))
	done(err)
	return item, res, err
}

// ReserveStock increases the reserved quantity for (itemID, ownerID). No
// check is made against current stock; over-reservation surfaces as a
// warn-severity rule violation in the result.
func (s *Service) ReserveStock(ctx context.Context, itemID, ownerID string, qty float64, orderID string) (InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "reserve_stock")
	item, res, err := s.mutateInventory(ctx, itemID, ownerID, domain.StockReserved, qty, orderNote(orderID), func(i *InventoryItem) {
		i.ReservedQuantity += qty
	})
	done(err)
	return item, res, err
}

// ReleaseReservedStock decreases the reserved quantity, clamped at zero.
func (s *Service) ReleaseReservedStock(ctx context.Context, itemID, ownerID string, qty float64, orderID string) (InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "release_reserved_stock")
	item, res, err := s.mutateInventory(ctx, itemID, ownerID, domain.StockReleased, qty, orderNote(orderID), func(i *InventoryItem) {
		i.ReservedQuantity -= qty
		if i.ReservedQuantity < 0 {
			i.ReservedQuantity = 0
		}
	})
	done(err)
	return item, res, err
}

// mutateInventory applies one stock mutation inside a transaction, appends the
// matching history entry, refreshes the alert flag, and synthesizes a
// low-stock notification when warranted.
func (s *Service) mutateInventory(ctx context.Context, itemID, ownerID string, action StockAction, qty float64, note string, apply func(*InventoryItem)) (InventoryItem, Result, error) {
	var item InventoryItem
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		item, err = tx.UpdateInventoryItem(itemID, ownerID, func(i *InventoryItem) error {
			apply(i)
			i.RecomputeAlert()
			i.StockHistory = append(i.StockHistory, domain.StockEvent{
				Action:    action,
				Quantity:  qty,
				Timestamp: s.now(),
				Note:      note,
			})
			return nil
		})
		if err != nil {
			return err
		}
		return s.maybeLowStockAlert(tx, item)
	})
	return item, res, err
}

// applySale decrements current stock clamped at zero and grows sold quantity
// by the full amount requested, even past available stock.
func applySale(qty float64) func(*InventoryItem) {
	return func(i *InventoryItem) {
		i.CurrentQuantity -= qty
		if i.CurrentQuantity < 0 {
			i.CurrentQuantity = 0
		}
		i.SoldQuantity += qty
	}
}

func saleNote(buyerID, orderID string) string {
	switch {
	case buyerID != "" && orderID != "":
		return fmt.Sprintf("sold to %s (order %s)", buyerID, orderID)
	case buyerID != "":
		return fmt.Sprintf("sold to %s", buyerID)
	case orderID != "":
		return fmt.Sprintf("order %s", orderID)
	}
	return ""
}

func orderNote(orderID string) string {
	if orderID == "" {
		return ""
	}
	return fmt.Sprintf("order %s", orderID)
}

// UserInventory returns all inventory records owned by ownerID with the
// given role.
func (s *Service) UserInventory(ownerID string, role Role) []InventoryItem {
	var out []InventoryItem
	for _, item := range s.store.ListInventoryItems() {
		if item.OwnerID == ownerID && item.OwnerRole == role {
			out = append(out, item)
		}
	}
	return out
}

// LowStockItems returns the owner's records flagged for restock attention.
func (s *Service) LowStockItems(ownerID string, role Role) []InventoryItem {
	var out []InventoryItem
	for _, item := range s.UserInventory(ownerID, role) {
		if item.LowStockAlert || item.CurrentQuantity <= LowStockThreshold {
			out = append(out, item)
		}
	}
	return out
}

// InventoryStatistics aggregates the owner's stock position, computed per call.
func (s *Service) InventoryStatistics(ownerID string, role Role) InventoryStats {
	stats := InventoryStats{}
	for _, item := range s.UserInventory(ownerID, role) {
		stats.TotalItems++
		stats.TotalCurrent += item.CurrentQuantity
		stats.TotalReserved += item.ReservedQuantity
		stats.TotalSold += item.SoldQuantity
		if item.LowStockAlert {
			stats.LowStock++
		}
		if item.CurrentQuantity == 0 {
			stats.OutOfStock++
		}
	}
	return stats
}

// AvailableQuantity returns max(0, current-reserved) for (itemID, ownerID).
func (s *Service) AvailableQuantity(itemID, ownerID string) (float64, bool) {
	item, ok := s.store.FindInventoryItem(itemID, ownerID)
	if !ok {
		return 0, false
	}
	return item.Available(), true
}

// InventoryItemFor returns the record stored under (itemID, ownerID).
func (s *Service) InventoryItemFor(itemID, ownerID string) (InventoryItem, bool) {
	return s.store.FindInventoryItem(itemID, ownerID)
}
