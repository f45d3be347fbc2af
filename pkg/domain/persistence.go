package domain

import "context"

// Transaction exposes the domain operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	CreateOrder(Order) (Order, error)
	UpdateOrder(id string, mutator func(*Order) error) (Order, error)
	// PutInventoryItem upserts by composite key, replacing any existing
	// record wholesale. Re-initialization is intentionally destructive.
	PutInventoryItem(InventoryItem) (InventoryItem, error)
	UpdateInventoryItem(itemID, ownerID string, mutator func(*InventoryItem) error) (InventoryItem, error)
	CreateNotification(Notification) (Notification, error)
	UpdateNotification(id string, mutator func(*Notification) error) (Notification, error)
	DeleteNotification(id string) error
	PutNotificationSettings(NotificationSettings) (NotificationSettings, error)
	FindBatch(id string) (Batch, bool)
	FindProduct(id string) (Product, bool)
	FindOrder(id string) (Order, bool)
	FindInventoryItem(itemID, ownerID string) (InventoryItem, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// derivation passes.
type TransactionView interface {
	ListBatches() []Batch
	ListProducts() []Product
	ListOrders() []Order
	ListInventoryItems() []InventoryItem
	ListNotifications() []Notification
	FindBatch(id string) (Batch, bool)
	FindProduct(id string) (Product, bool)
	FindOrder(id string) (Order, bool)
	FindInventoryItem(itemID, ownerID string) (InventoryItem, bool)
	NotificationSettingsFor(userID string) (NotificationSettings, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	FindBatch(id string) (Batch, bool)
	FindProduct(id string) (Product, bool)
	FindOrder(id string) (Order, bool)
	FindInventoryItem(itemID, ownerID string) (InventoryItem, bool)
	ListBatches() []Batch
	ListProducts() []Product
	ListOrders() []Order
	ListInventoryItems() []InventoryItem
	ListNotifications() []Notification
	NotificationSettingsFor(userID string) (NotificationSettings, bool)
}
