package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agrichain/pkg/domain"
)

// lowStockDedupWindow bounds repeat low-stock alerts per item and owner.
const lowStockDedupWindow = 24 * time.Hour

// NotificationStats aggregates one user's notifications by type and priority.
type NotificationStats struct {
	Total      int                      `json:"total"`
	Unread     int                      `json:"unread"`
	ByType     map[NotificationType]int `json:"by_type"`
	ByPriority map[Priority]int         `json:"by_priority"`
}

// SettingsPatch carries the per-user preference flags to merge; nil fields
// keep their stored value.
type SettingsPatch struct {
	OrderUpdates         *bool
	InventoryAlerts      *bool
	DeliveryUpdates      *bool
	PaymentConfirmations *bool
	EmailNotifications   *bool
	PushNotifications    *bool
}

func lowStockDedupKey(itemID, ownerID string) string {
	return "low_stock:" + domain.InventoryKey(itemID, ownerID)
}

func newOrderDedupKey(orderID string) string {
	return "new_order:" + orderID
}

// maybeLowStockAlert synthesizes a low-stock notification for the item owner
// when the alert flag is set and no alert with the same dedup key exists
// within the suppression window. Quantity exactly zero escalates to urgent.
func (s *Service) maybeLowStockAlert(tx Transaction, item InventoryItem) error {
	if !item.LowStockAlert {
		return nil
	}
	key := lowStockDedupKey(item.ItemID, item.OwnerID)
	cutoff := s.now().Add(-lowStockDedupWindow)
	for _, n := range tx.Snapshot().ListNotifications() {
		if n.Metadata.DedupKey == key && n.CreatedAt.After(cutoff) {
			return nil
		}
	}
	priority := domain.PriorityHigh
	title := "Low stock"
	message := fmt.Sprintf("Item %s is down to %.2f units", item.ItemID, item.CurrentQuantity)
	if item.CurrentQuantity == 0 {
		priority = domain.PriorityUrgent
		title = "Out of stock"
		message = fmt.Sprintf("Item %s is out of stock", item.ItemID)
	}
	_, err := tx.CreateNotification(Notification{
		UserID:  item.OwnerID,
		Type:    domain.NotificationLowStock,
		Title:   title,
		Message: message,
		Metadata: NotificationMeta{
			Priority: priority,
			ItemID:   item.ItemID,
			OwnerID:  item.OwnerID,
			DedupKey: key,
		},
	})
	return err
}

// maybeNewOrderAlert tells the buyer side about a pending order, at most once
// per order ever.
func (s *Service) maybeNewOrderAlert(tx Transaction, order Order) error {
	if order.Status != OrderStatusPending {
		return nil
	}
	buyerID, _, ok := order.BuyerID()
	if !ok {
		return nil
	}
	key := newOrderDedupKey(order.ID)
	for _, n := range tx.Snapshot().ListNotifications() {
		if n.Metadata.DedupKey == key {
			return nil
		}
	}
	_, err := tx.CreateNotification(Notification{
		UserID:  buyerID,
		Type:    domain.NotificationNewOrder,
		Title:   "New order",
		Message: fmt.Sprintf("You have a new %s order %s for %.2f %s", order.Type, order.ID, order.Quantity, order.Unit),
		Metadata: NotificationMeta{
			Priority: domain.PriorityHigh,
			OrderID:  order.ID,
			DedupKey: key,
		},
	})
	return err
}

// CreateNotification persists an explicit notification record.
func (s *Service) CreateNotification(ctx context.Context, n Notification) (Notification, Result, error) {
	ctx, done := s.instrument(ctx, "create_notification")
	var created Notification
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateNotification(n)
		return err
	})
	done(err)
	return created, res, err
}

// UserNotifications returns the user's notifications sorted newest first and
// truncated to limit. A non-positive limit returns all of them.
func (s *Service) UserNotifications(userID string, limit int) []Notification {
	var out []Notification
	for _, n := range s.store.ListNotifications() {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MarkNotificationRead flags one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) (Notification, Result, error) {
	ctx, done := s.instrument(ctx, "mark_notification_read")
	var updated Notification
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateNotification(id, func(n *Notification) error {
			n.Read = true
			return nil
		})
		return err
	})
	done(err)
	return updated, res, err
}

// MarkAllNotificationsRead flags every unread notification for the user.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int, Result, error) {
	ctx, done := s.instrument(ctx, "mark_all_notifications_read")
	var count int
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, n := range tx.Snapshot().ListNotifications() {
			if n.UserID != userID || n.Read {
				continue
			}
			if _, err := tx.UpdateNotification(n.ID, func(n *Notification) error {
				n.Read = true
				return nil
			}); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	done(err)
	if err != nil {
		count = 0
	}
	return count, res, err
}

// DeleteNotification removes a notification record.
func (s *Service) DeleteNotification(ctx context.Context, id string) (Result, error) {
	ctx, done := s.instrument(ctx, "delete_notification")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteNotification(id)
	})
	done(err)
	return res, err
}

// UnreadCount counts all of the user's unread notifications.
func (s *Service) UnreadCount(userID string) int {
	count := 0
	for _, n := range s.store.ListNotifications() {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count
}

// NotificationStatistics aggregates the user's notifications per call.
func (s *Service) NotificationStatistics(userID string) NotificationStats {
	stats := NotificationStats{
		ByType:     make(map[NotificationType]int),
		ByPriority: make(map[Priority]int),
	}
	for _, n := range s.store.ListNotifications() {
		if n.UserID != userID {
			continue
		}
		stats.Total++
		if !n.Read {
			stats.Unread++
		}
		stats.ByType[n.Type]++
		stats.ByPriority[n.Metadata.Priority]++
	}
	return stats
}

// RunAutoNotificationScan is the reconciliation pass over the user's low
// stock items and pending incoming orders. Alerts are normally synthesized at
// mutation time with the same dedup keys, so the scan only creates records
// that slipped through, for example after an imported snapshot.
func (s *Service) RunAutoNotificationScan(ctx context.Context, userID string, role Role) ([]Notification, Result, error) {
	ctx, done := s.instrument(ctx, "auto_notification_scan")
	var created []Notification
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		snap := tx.Snapshot()
		before := notificationIDs(snap.ListNotifications())

		for _, item := range snap.ListInventoryItems() {
			if item.OwnerID != userID || item.OwnerRole != role {
				continue
			}
			item.RecomputeAlert()
			if err := s.maybeLowStockAlert(tx, item); err != nil {
				return err
			}
		}
		for _, order := range snap.ListOrders() {
			if order.Status != OrderStatusPending {
				continue
			}
			buyerID, buyerRole, ok := order.BuyerID()
			if !ok || buyerID != userID || buyerRole != role {
				continue
			}
			if err := s.maybeNewOrderAlert(tx, order); err != nil {
				return err
			}
		}

		for _, n := range tx.Snapshot().ListNotifications() {
			if _, existed := before[n.ID]; !existed {
				created = append(created, n)
			}
		}
		return nil
	})
	done(err)
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

func notificationIDs(list []Notification) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, n := range list {
		out[n.ID] = struct{}{}
	}
	return out
}

// UpdateNotificationSettings shallow-merges the patch onto the user's stored
// settings, starting from defaults when none exist.
func (s *Service) UpdateNotificationSettings(ctx context.Context, userID string, patch SettingsPatch) (NotificationSettings, Result, error) {
	ctx, done := s.instrument(ctx, "update_notification_settings")
	var merged NotificationSettings
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.Snapshot().NotificationSettingsFor(userID)
		if !ok {
			current = domain.DefaultNotificationSettings(userID)
		}
		applyBool(&current.OrderUpdates, patch.OrderUpdates)
		applyBool(&current.InventoryAlerts, patch.InventoryAlerts)
		applyBool(&current.DeliveryUpdates, patch.DeliveryUpdates)
		applyBool(&current.PaymentConfirmations, patch.PaymentConfirmations)
		applyBool(&current.EmailNotifications, patch.EmailNotifications)
		applyBool(&current.PushNotifications, patch.PushNotifications)
		var err error
		merged, err = tx.PutNotificationSettings(current)
		return err
	})
	done(err)
	return merged, res, err
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// NotificationSettingsFor returns the user's stored settings, or the
// defaults when none have been saved yet.
func (s *Service) NotificationSettingsFor(userID string) NotificationSettings {
	settings, ok := s.store.NotificationSettingsFor(userID)
	if !ok {
		return domain.DefaultNotificationSettings(userID)
	}
	return settings
}
