package core

import "agrichain/pkg/domain"

type (
	EntityType           = domain.EntityType
	Role                 = domain.Role
	OrderType            = domain.OrderType
	OrderStatus          = domain.OrderStatus
	ItemType             = domain.ItemType
	StockAction          = domain.StockAction
	NotificationType     = domain.NotificationType
	Priority             = domain.Priority
	Severity             = domain.Severity
	Base                 = domain.Base
	Batch                = domain.Batch
	Product              = domain.Product
	Order                = domain.Order
	Delivery             = domain.Delivery
	InventoryItem        = domain.InventoryItem
	StockEvent           = domain.StockEvent
	Notification         = domain.Notification
	NotificationMeta     = domain.NotificationMeta
	NotificationSettings = domain.NotificationSettings
	Change               = domain.Change
	Action               = domain.Action
	Violation            = domain.Violation
	Result               = domain.Result
	RuleViolationError   = domain.RuleViolationError
	Rule                 = domain.Rule
	RulesEngine          = domain.RulesEngine
	Transaction          = domain.Transaction
	TransactionView      = domain.TransactionView
	PersistentStore      = domain.PersistentStore
)

const (
	EntityBatch                = domain.EntityBatch
	EntityProduct              = domain.EntityProduct
	EntityOrder                = domain.EntityOrder
	EntityInventoryItem        = domain.EntityInventoryItem
	EntityNotification         = domain.EntityNotification
	EntityNotificationSettings = domain.EntityNotificationSettings
)

const (
	RoleFarmer      = domain.RoleFarmer
	RoleProcessor   = domain.RoleProcessor
	RoleDistributor = domain.RoleDistributor
	RoleConsumer    = domain.RoleConsumer
)

const (
	OrderProcessing   = domain.OrderProcessing
	OrderDistribution = domain.OrderDistribution
	OrderConsumer     = domain.OrderConsumer
)

const (
	OrderStatusPending    = domain.OrderStatusPending
	OrderStatusConfirmed  = domain.OrderStatusConfirmed
	OrderStatusProcessing = domain.OrderStatusProcessing
	OrderStatusShipped    = domain.OrderStatusShipped
	OrderStatusDelivered  = domain.OrderStatusDelivered
	OrderStatusCancelled  = domain.OrderStatusCancelled
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// LowStockThreshold re-exports the module-wide restock threshold.
const LowStockThreshold = domain.LowStockThreshold
