// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by the agrichain core.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBatch identifies a harvested batch record.
	EntityBatch EntityType = "batch"
	// EntityProduct identifies a processed product record.
	EntityProduct EntityType = "product"
	// EntityOrder identifies an order record.
	EntityOrder EntityType = "order"
	// EntityInventoryItem identifies a per-owner stock record.
	EntityInventoryItem EntityType = "inventory_item"
	// EntityNotification identifies a notification record.
	EntityNotification EntityType = "notification"
	// EntityNotificationSettings identifies a per-user settings record.
	EntityNotificationSettings EntityType = "notification_settings"
)

// Role identifies a supply-chain participant role.
type Role string

// Participant roles along the chain, in flow order.
const (
	RoleFarmer      Role = "farmer"
	RoleProcessor   Role = "processor"
	RoleDistributor Role = "distributor"
	RoleConsumer    Role = "consumer"
)

// OrderType identifies which leg of the chain an order moves goods across.
type OrderType string

// Order types map to the three handoffs between adjacent roles.
const (
	// OrderProcessing moves a batch from a farmer to a processor.
	OrderProcessing OrderType = "processing"
	// OrderDistribution moves a product from a processor to a distributor.
	OrderDistribution OrderType = "distribution"
	// OrderConsumer moves a product from a distributor to a consumer.
	OrderConsumer OrderType = "consumer"
)

// OrderStatus enumerates the caller-driven order workflow states. No
// transition machine is enforced; any status may be set from any other.
type OrderStatus string

// Canonical order statuses.
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ItemType distinguishes the two tradeable item kinds held in inventory.
type ItemType string

// Inventory item types.
const (
	ItemBatch   ItemType = "batch"
	ItemProduct ItemType = "product"
)

// StockAction labels entries in an inventory item's stock history.
type StockAction string

// Stock history actions, one per mutating inventory operation.
const (
	StockInitialized StockAction = "initialized"
	StockAdded       StockAction = "added"
	StockSale        StockAction = "sale"
	StockReserved    StockAction = "reserved"
	StockReleased    StockAction = "released"
)

// NotificationType enumerates the notification categories.
type NotificationType string

// Canonical notification types.
const (
	NotificationOrderStatus      NotificationType = "order_status"
	NotificationPaymentConfirmed NotificationType = "payment_confirmed"
	NotificationInventoryAlert   NotificationType = "inventory_alert"
	NotificationDeliveryUpdate   NotificationType = "delivery_update"
	NotificationNewOrder         NotificationType = "new_order"
	NotificationLowStock         NotificationType = "low_stock"
	NotificationSystem           NotificationType = "system"
)

// Priority ranks notification urgency.
type Priority string

// Notification priorities; PriorityNormal is the default.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// LowStockThreshold is the fixed quantity at or below which an item is
// flagged for restock attention. Module-wide, not per item.
const LowStockThreshold float64 = 10

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a violation but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all id-keyed domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChainRecord captures the on-chain trace of a batch once recording succeeds.
type ChainRecord struct {
	TxHash      string    `json:"tx_hash"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Batch is a farmer-created lot of harvested product, the root traceable unit.
type Batch struct {
	Base
	FarmerID    string       `json:"farmer_id"`
	CropType    string       `json:"crop_type"`
	Quantity    float64      `json:"quantity"`
	Unit        string       `json:"unit"`
	HarvestDate time.Time    `json:"harvest_date"`
	Status      string       `json:"status"`
	Chain       *ChainRecord `json:"chain,omitempty"`
}

// Product is a processor-created good derived from a batch.
type Product struct {
	Base
	Name        string  `json:"name"`
	BatchID     string  `json:"batch_id"`
	ProcessorID string  `json:"processor_id"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Status      string  `json:"status"`
}

// Delivery holds the delivery fields carried on an order.
type Delivery struct {
	Address string     `json:"address,omitempty"`
	Date    *time.Time `json:"date,omitempty"`
	Note    string     `json:"note,omitempty"`
}

// Order records a handoff between two adjacent roles. Only the participant
// pair relevant to Type is populated.
type Order struct {
	Base
	Type           OrderType   `json:"type"`
	FarmerID       *string     `json:"farmer_id,omitempty"`
	ProcessorID    *string     `json:"processor_id,omitempty"`
	DistributorID  *string     `json:"distributor_id,omitempty"`
	ConsumerID     *string     `json:"consumer_id,omitempty"`
	BatchID        *string     `json:"batch_id,omitempty"`
	ProductID      *string     `json:"product_id,omitempty"`
	Quantity       float64     `json:"quantity"`
	Unit           string      `json:"unit"`
	TotalAmount    float64     `json:"total_amount"`
	Status         OrderStatus `json:"status"`
	Delivery       Delivery    `json:"delivery"`
	StockAppliedAt *time.Time  `json:"stock_applied_at,omitempty"`
}

// ItemRef returns the batch or product reference relevant to the order type.
func (o Order) ItemRef() (string, ItemType, bool) {
	switch o.Type {
	case OrderProcessing:
		if o.BatchID != nil {
			return *o.BatchID, ItemBatch, true
		}
	case OrderDistribution, OrderConsumer:
		if o.ProductID != nil {
			return *o.ProductID, ItemProduct, true
		}
	}
	return "", "", false
}

// SellerID returns the participant that gives up stock when the order is
// fulfilled, together with their role.
func (o Order) SellerID() (string, Role, bool) {
	switch o.Type {
	case OrderProcessing:
		if o.FarmerID != nil {
			return *o.FarmerID, RoleFarmer, true
		}
	case OrderDistribution:
		if o.ProcessorID != nil {
			return *o.ProcessorID, RoleProcessor, true
		}
	case OrderConsumer:
		if o.DistributorID != nil {
			return *o.DistributorID, RoleDistributor, true
		}
	}
	return "", "", false
}

// BuyerID returns the participant that receives goods for the order type.
func (o Order) BuyerID() (string, Role, bool) {
	switch o.Type {
	case OrderProcessing:
		if o.ProcessorID != nil {
			return *o.ProcessorID, RoleProcessor, true
		}
	case OrderDistribution:
		if o.DistributorID != nil {
			return *o.DistributorID, RoleDistributor, true
		}
	case OrderConsumer:
		if o.ConsumerID != nil {
			return *o.ConsumerID, RoleConsumer, true
		}
	}
	return "", "", false
}

// StockEvent is one append-only entry in an inventory item's history.
type StockEvent struct {
	Action    StockAction `json:"action"`
	Quantity  float64     `json:"quantity"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

// InventoryItem tracks per-owner stock for a batch or product. Identity is
// the composite (ItemID, OwnerID); every operation is scoped by both.
type InventoryItem struct {
	ItemID           string       `json:"item_id"`
	OwnerID          string       `json:"owner_id"`
	ItemType         ItemType     `json:"item_type"`
	OwnerRole        Role         `json:"owner_role"`
	InitialQuantity  float64      `json:"initial_quantity"`
	CurrentQuantity  float64      `json:"current_quantity"`
	ReservedQuantity float64      `json:"reserved_quantity"`
	SoldQuantity     float64      `json:"sold_quantity"`
	LowStockAlert    bool         `json:"low_stock_alert"`
	CreatedAt        time.Time    `json:"created_at"`
	LastUpdated      time.Time    `json:"last_updated"`
	StockHistory     []StockEvent `json:"stock_history"`
}

// InventoryKey builds the composite persistence key for an inventory record.
func InventoryKey(itemID, ownerID string) string {
	return fmt.Sprintf("%s|%s", itemID, ownerID)
}

// Key returns the record's composite persistence key.
func (i InventoryItem) Key() string {
	return InventoryKey(i.ItemID, i.OwnerID)
}

// Available returns the quantity free for sale: max(0, current-reserved).
func (i InventoryItem) Available() float64 {
	avail := i.CurrentQuantity - i.ReservedQuantity
	if avail < 0 {
		return 0
	}
	return avail
}

// RecomputeAlert refreshes the stored low-stock flag from current quantity.
func (i *InventoryItem) RecomputeAlert() {
	i.LowStockAlert = i.CurrentQuantity <= LowStockThreshold
}

// NotificationMeta carries priority and context references for a notification.
type NotificationMeta struct {
	Priority Priority `json:"priority"`
	ItemID   string   `json:"item_id,omitempty"`
	OwnerID  string   `json:"owner_id,omitempty"`
	OrderID  string   `json:"order_id,omitempty"`
	ActorID  string   `json:"actor_id,omitempty"`
	// DedupKey makes derived alerts idempotent: at most one outstanding
	// notification per key per suppression window.
	DedupKey string `json:"dedup_key,omitempty"`
}

// Notification is a per-user alert record.
type Notification struct {
	Base
	UserID   string           `json:"user_id"`
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Metadata NotificationMeta `json:"metadata"`
	Read     bool             `json:"read"`
}

// NotificationSettings holds per-user delivery preference flags. The record
// is advisory in this core; it is stored and merged but consulted only by
// outer surfaces.
type NotificationSettings struct {
	UserID               string    `json:"user_id"`
	OrderUpdates         bool      `json:"order_updates"`
	InventoryAlerts      bool      `json:"inventory_alerts"`
	DeliveryUpdates      bool      `json:"delivery_updates"`
	PaymentConfirmations bool      `json:"payment_confirmations"`
	EmailNotifications   bool      `json:"email_notifications"`
	PushNotifications    bool      `json:"push_notifications"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultNotificationSettings returns the flags a user starts with.
func DefaultNotificationSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:               userID,
		OrderUpdates:         true,
		InventoryAlerts:      true,
		DeliveryUpdates:      true,
		PaymentConfirmations: true,
		EmailNotifications:   true,
		PushNotifications:    false,
	}
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
