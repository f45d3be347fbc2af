package core

import (
	"context"
	"testing"
	"time"

	"agrichain/pkg/domain"
)

func TestLowStockAlertDeduplicatedWithin24h(t *testing.T) {
	svc, _, now := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 5, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := countByType(svc, "F1", domain.NotificationLowStock); got != 1 {
		t.Fatalf("alerts after init = %d", got)
	}

	*now = now.Add(time.Hour)
	if _, _, err := svc.RecordSale(ctx, "BTH-1", "F1", 1, "", ""); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if got := countByType(svc, "F1", domain.NotificationLowStock); got != 1 {
		t.Fatalf("alert duplicated inside window: %d", got)
	}

	*now = now.Add(25 * time.Hour)
	if _, _, err := svc.RecordSale(ctx, "BTH-1", "F1", 1, "", ""); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if got := countByType(svc, "F1", domain.NotificationLowStock); got != 2 {
		t.Fatalf("alerts after window elapsed = %d", got)
	}
}

func TestZeroStockAlertIsUrgent(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	if _, _, err := svc.InitializeInventoryItem(ctx, "BTH-1", domain.ItemBatch, 0, "F1", RoleFarmer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	notifications := svc.UserNotifications("F1", 0)
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d", len(notifications))
	}
	if notifications[0].Metadata.Priority != domain.PriorityUrgent {
		t.Fatalf("priority = %q", notifications[0].Metadata.Priority)
	}
}

func countByType(svc *Service, userID string, ntype NotificationType) int {
	count := 0
	for _, n := range svc.UserNotifications(userID, 0) {
		if n.Type == ntype {
			count++
		}
	}
	return count
}

func TestUserNotificationsSortedBeforeTruncation(t *testing.T) {
	svc, _, now := newClockedService(testStart)
	ctx := context.Background()

	titles := []string{"first", "second", "third", "fourth"}
	for _, title := range titles {
		if _, _, err := svc.CreateNotification(ctx, Notification{UserID: "U1", Type: domain.NotificationSystem, Title: title}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		*now = now.Add(time.Minute)
	}

	limited := svc.UserNotifications("U1", 2)
	if len(limited) != 2 {
		t.Fatalf("limited length = %d", len(limited))
	}
	if limited[0].Title != "fourth" || limited[1].Title != "third" {
		t.Fatalf("newest not retained: %q, %q", limited[0].Title, limited[1].Title)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	var first Notification
	for i := 0; i < 3; i++ {
		n, _, err := svc.CreateNotification(ctx, Notification{UserID: "U1", Type: domain.NotificationSystem, Title: "n"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if i == 0 {
			first = n
		}
	}
	if got := svc.UnreadCount("U1"); got != 3 {
		t.Fatalf("unread = %d", got)
	}

	if _, _, err := svc.MarkNotificationRead(ctx, first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := svc.UnreadCount("U1"); got != 2 {
		t.Fatalf("unread after one read = %d", got)
	}

	count, _, err := svc.MarkAllNotificationsRead(ctx, "U1")
	if err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if count != 2 {
		t.Fatalf("marked = %d", count)
	}
	if got := svc.UnreadCount("U1"); got != 0 {
		t.Fatalf("unread after mark all = %d", got)
	}
}

func TestDeleteNotificationRemovesRecord(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, Notification{UserID: "U1", Type: domain.NotificationSystem, Title: "bye"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.DeleteNotification(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := len(svc.UserNotifications("U1", 0)); got != 0 {
		t.Fatalf("notifications remaining = %d", got)
	}
}

func TestNotificationStatistics(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	seed := []Notification{
		{UserID: "U1", Type: domain.NotificationSystem},
		{UserID: "U1", Type: domain.NotificationLowStock, Metadata: NotificationMeta{Priority: domain.PriorityUrgent}},
		{UserID: "U1", Type: domain.NotificationLowStock, Metadata: NotificationMeta{Priority: domain.PriorityHigh}, Read: true},
		{UserID: "U2", Type: domain.NotificationSystem},
	}
	for _, n := range seed {
		if _, _, err := svc.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	stats := svc.NotificationStatistics("U1")
	if stats.Total != 3 || stats.Unread != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ByType[domain.NotificationLowStock] != 2 {
		t.Fatalf("by type = %v", stats.ByType)
	}
	if stats.ByPriority[domain.PriorityUrgent] != 1 || stats.ByPriority[domain.PriorityNormal] != 1 {
		t.Fatalf("by priority = %v", stats.ByPriority)
	}
}

func TestAutoScanBackfillsMissedAlerts(t *testing.T) {
	svc, store, _ := newClockedService(testStart)
	ctx := context.Background()

	// Write records straight into the store, bypassing mutation-time
	// synthesis, as an imported snapshot would.
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		item := InventoryItem{
			ItemID:          "BTH-1",
			OwnerID:         "F1",
			ItemType:        domain.ItemBatch,
			OwnerRole:       RoleFarmer,
			CurrentQuantity: 3,
			LowStockAlert:   true,
		}
		if _, err := tx.PutInventoryItem(item); err != nil {
			return err
		}
		farmer := "F2"
		processor := "F1"
		batch := "BTH-2"
		_, err := tx.CreateOrder(Order{
			Type:        OrderProcessing,
			FarmerID:    &farmer,
			ProcessorID: &processor,
			BatchID:     &batch,
			Status:      OrderStatusPending,
			Quantity:    5,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// F1 is both the low-stock farmer and the awaiting processor here, so
	// scan per role.
	created, _, err := svc.RunAutoNotificationScan(ctx, "F1", RoleFarmer)
	if err != nil {
		t.Fatalf("farmer scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != domain.NotificationLowStock {
		t.Fatalf("farmer scan created = %+v", created)
	}

	created, _, err = svc.RunAutoNotificationScan(ctx, "F1", RoleProcessor)
	if err != nil {
		t.Fatalf("processor scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != domain.NotificationNewOrder {
		t.Fatalf("processor scan created = %+v", created)
	}

	// Idempotent: nothing new on repeat.
	created, _, err = svc.RunAutoNotificationScan(ctx, "F1", RoleProcessor)
	if err != nil {
		t.Fatalf("repeat scan: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("repeat scan created = %+v", created)
	}
}

func TestNotificationSettingsMerge(t *testing.T) {
	svc, _, _ := newClockedService(testStart)
	ctx := context.Background()

	// Unsaved user reads defaults.
	defaults := svc.NotificationSettingsFor("U1")
	if !defaults.OrderUpdates || defaults.PushNotifications {
		t.Fatalf("defaults = %+v", defaults)
	}

	off := false
	on := true
	merged, _, err := svc.UpdateNotificationSettings(ctx, "U1", SettingsPatch{
		EmailNotifications: &off,
		PushNotifications:  &on,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if merged.EmailNotifications || !merged.PushNotifications {
		t.Fatalf("merged = %+v", merged)
	}
	if !merged.OrderUpdates {
		t.Fatal("untouched flag lost its default")
	}

	// Second patch keeps the earlier override.
	merged, _, err = svc.UpdateNotificationSettings(ctx, "U1", SettingsPatch{OrderUpdates: &off})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if merged.EmailNotifications {
		t.Fatal("earlier override lost on merge")
	}
	if merged.OrderUpdates {
		t.Fatal("patched flag not applied")
	}
}
