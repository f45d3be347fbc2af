package core

import (
	"context"

	"agrichain/pkg/domain"
)

// SyncInventoryWithCatalog creates missing inventory records for known
// batches and products. Existing records are left untouched, so the pass is
// safe to repeat. Returns the records created.
func (s *Service) SyncInventoryWithCatalog(ctx context.Context) ([]InventoryItem, Result, error) {
	ctx, done := s.instrument(ctx, "sync_inventory_with_catalog")
	var created []InventoryItem
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		snap := tx.Snapshot()
		for _, b := range snap.ListBatches() {
			if b.FarmerID == "" {
				continue
			}
			if _, ok := tx.FindInventoryItem(b.ID, b.FarmerID); ok {
				continue
			}
			item, err := s.initializeInventory(tx, b.ID, domain.ItemBatch, b.Quantity, b.FarmerID, RoleFarmer)
			if err != nil {
				return err
			}
			if err := s.maybeLowStockAlert(tx, item); err != nil {
				return err
			}
			created = append(created, item)
		}
		for _, p := range snap.ListProducts() {
			if p.ProcessorID == "" {
				continue
			}
			if _, ok := tx.FindInventoryItem(p.ID, p.ProcessorID); ok {
				continue
			}
			item, err := s.initializeInventory(tx, p.ID, domain.ItemProduct, p.Quantity, p.ProcessorID, RoleProcessor)
			if err != nil {
				return err
			}
			if err := s.maybeLowStockAlert(tx, item); err != nil {
				return err
			}
			created = append(created, item)
		}
		return nil
	})
	done(err)
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// SyncInventoryWithOrders applies the sale effect of confirmed and delivered
// orders to the seller's inventory. Each order is applied at most once: the
// stock_applied_at marker set on application makes the pass idempotent.
// Orders whose seller has no inventory record yet are skipped without a
// marker so a later pass can pick them up.
func (s *Service) SyncInventoryWithOrders(ctx context.Context) (int, Result, error) {
	ctx, done := s.instrument(ctx, "sync_inventory_with_orders")
	applied := 0
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, order := range tx.Snapshot().ListOrders() {
			if order.Status != OrderStatusConfirmed && order.Status != OrderStatusDelivered {
				continue
			}
			if order.StockAppliedAt != nil {
				continue
			}
			itemID, _, ok := order.ItemRef()
			if !ok {
				continue
			}
			sellerID, _, ok := order.SellerID()
			if !ok {
				continue
			}
			if _, ok := tx.FindInventoryItem(itemID, sellerID); !ok {
				continue
			}
			buyerID, _, _ := order.BuyerID()
			qty := order.Quantity
			item, err := tx.UpdateInventoryItem(itemID, sellerID, func(i *InventoryItem) error {
				applySale(qty)(i)
				i.RecomputeAlert()
				i.StockHistory = append(i.StockHistory, domain.StockEvent{
					Action:    domain.StockSale,
					Quantity:  qty,
					Timestamp: s.now(),
					Note:      saleNote(buyerID, order.ID),
				})
				return nil
			})
			if err != nil {
				return err
			}
			if err := s.maybeLowStockAlert(tx, item); err != nil {
				return err
			}
			appliedAt := s.now()
			if _, err := tx.UpdateOrder(order.ID, func(o *Order) error {
				o.StockAppliedAt = &appliedAt
				return nil
			}); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	done(err)
	if err != nil {
		return 0, res, err
	}
	return applied, res, nil
}
