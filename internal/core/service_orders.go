package core

import (
	"context"
	"fmt"
	"sort"

	"agrichain/pkg/domain"
)

// OrderInput carries the caller-supplied fields shared by all order kinds.
type OrderInput struct {
	Quantity    float64
	Unit        string
	TotalAmount float64
	Delivery    Delivery
}

// OrdersView partitions one user's orders into incoming and outgoing sides.
type OrdersView struct {
	Incoming []Order `json:"incoming"`
	Outgoing []Order `json:"outgoing"`
}

// OrderStats aggregates one user's orders, computed per call.
type OrderStats struct {
	Total     int                 `json:"total"`
	ByStatus  map[OrderStatus]int `json:"by_status"`
	Revenue   float64             `json:"revenue"`
	Purchases float64             `json:"purchases"`
}

// CreateProcessingOrder records a batch handoff from a farmer to a processor.
// The order starts pending and the processor is notified.
func (s *Service) CreateProcessingOrder(ctx context.Context, farmerID, processorID, batchID string, in OrderInput) (Order, Result, error) {
	order := Order{
		Type:        OrderProcessing,
		FarmerID:    &farmerID,
		ProcessorID: &processorID,
		BatchID:     &batchID,
		Status:      OrderStatusPending,
	}
	return s.createOrder(ctx, "create_processing_order", order, in)
}

// CreateDistributionOrder records a product handoff from a processor to a
// distributor. The order starts pending and the distributor is notified.
func (s *Service) CreateDistributionOrder(ctx context.Context, processorID, distributorID, productID string, in OrderInput) (Order, Result, error) {
	order := Order{
		Type:          OrderDistribution,
		ProcessorID:   &processorID,
		DistributorID: &distributorID,
		ProductID:     &productID,
		Status:        OrderStatusPending,
	}
	return s.createOrder(ctx, "create_distribution_order", order, in)
}

// CreateConsumerOrder records a post-payment purchase by a consumer from a
// distributor. The order starts confirmed and the consumer receives a payment
// confirmation.
func (s *Service) CreateConsumerOrder(ctx context.Context, distributorID, consumerID, productID string, in OrderInput) (Order, Result, error) {
	order := Order{
		Type:          OrderConsumer,
		DistributorID: &distributorID,
		ConsumerID:    &consumerID,
		ProductID:     &productID,
		Status:        OrderStatusConfirmed,
	}
	return s.createOrder(ctx, "create_consumer_order", order, in)
}

func (s *Service) createOrder(ctx context.Context, operation string, order Order, in OrderInput) (Order, Result, error) {
	ctx, done := s.instrument(ctx, operation)
	order.Quantity = in.Quantity
	order.Unit = in.Unit
	order.TotalAmount = in.TotalAmount
	order.Delivery = in.Delivery

	var created Order
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateOrder(order)
		if err != nil {
			return err
		}
		switch created.Type {
		case OrderConsumer:
			return s.notifyPaymentConfirmed(tx, created)
		default:
			return s.maybeNewOrderAlert(tx, created)
		}
	})
	done(err)
	return created, res, err
}

// UpdateOrderStatus sets a new status on the order. Any status is reachable
// from any other; no transition machine is enforced. The buyer side receives
// a status notification in the same transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, note string) (Order, Result, error) {
	ctx, done := s.instrument(ctx, "update_order_status")
	var updated Order
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateOrder(orderID, func(o *Order) error {
			o.Status = status
			if note != "" {
				o.Delivery.Note = note
			}
			return nil
		})
		if err != nil {
			return err
		}
		return s.notifyOrderStatus(tx, updated)
	})
	done(err)
	return updated, res, err
}

// FindOrder retrieves one order by id.
func (s *Service) FindOrder(id string) (Order, bool) {
	return s.store.FindOrder(id)
}

// OrdersByUser partitions all orders into the user's incoming and outgoing
// sides per the chain routing: farmers only send processing orders,
// processors receive processing and send distribution, distributors receive
// distribution and send consumer, consumers only receive consumer orders.
func (s *Service) OrdersByUser(userID string, role Role) OrdersView {
	var v OrdersView
	for _, o := range s.store.ListOrders() {
		if orderIncomingFor(o, userID, role) {
			v.Incoming = append(v.Incoming, o)
		}
		if orderOutgoingFor(o, userID, role) {
			v.Outgoing = append(v.Outgoing, o)
		}
	}
	sortOrdersDesc(v.Incoming)
	sortOrdersDesc(v.Outgoing)
	return v
}

func orderIncomingFor(o Order, userID string, role Role) bool {
	switch role {
	case RoleProcessor:
		return o.Type == OrderProcessing && strPtrEq(o.ProcessorID, userID)
	case RoleDistributor:
		return o.Type == OrderDistribution && strPtrEq(o.DistributorID, userID)
	case RoleConsumer:
		return o.Type == OrderConsumer && strPtrEq(o.ConsumerID, userID)
	}
	return false
}

func orderOutgoingFor(o Order, userID string, role Role) bool {
	switch role {
	case RoleFarmer:
		return o.Type == OrderProcessing && strPtrEq(o.FarmerID, userID)
	case RoleProcessor:
		return o.Type == OrderDistribution && strPtrEq(o.ProcessorID, userID)
	case RoleDistributor:
		return o.Type == OrderConsumer && strPtrEq(o.DistributorID, userID)
	}
	return false
}

func strPtrEq(p *string, v string) bool {
	return p != nil && *p == v
}

func sortOrdersDesc(orders []Order) {
	sort.SliceStable(orders, func(a, b int) bool {
		return orders[a].CreatedAt.After(orders[b].CreatedAt)
	})
}

// OrderStatistics aggregates the user's orders: counts by status, revenue
// over the outgoing side, and purchases over the incoming side.
func (s *Service) OrderStatistics(userID string, role Role) OrderStats {
	stats := OrderStats{ByStatus: make(map[OrderStatus]int)}
	v := s.OrdersByUser(userID, role)
	for _, o := range v.Incoming {
		stats.Total++
		stats.ByStatus[o.Status]++
		stats.Purchases += o.TotalAmount
	}
	for _, o := range v.Outgoing {
		stats.Total++
		stats.ByStatus[o.Status]++
		stats.Revenue += o.TotalAmount
	}
	return stats
}

// notifyPaymentConfirmed records the consumer's payment confirmation.
func (s *Service) notifyPaymentConfirmed(tx Transaction, order Order) error {
	buyerID, _, ok := order.BuyerID()
	if !ok {
		return nil
	}
	_, err := tx.CreateNotification(Notification{
		UserID:  buyerID,
		Type:    domain.NotificationPaymentConfirmed,
		Title:   "Payment confirmed",
		Message: fmt.Sprintf("Payment of %.2f for order %s has been confirmed", order.TotalAmount, order.ID),
		Metadata: NotificationMeta{
			Priority: domain.PriorityNormal,
			OrderID:  order.ID,
		},
	})
	return err
}

// notifyOrderStatus tells the buyer side about a status change. Shipment and
// delivery statuses use the delivery update type.
func (s *Service) notifyOrderStatus(tx Transaction, order Order) error {
	buyerID, _, ok := order.BuyerID()
	if !ok {
		return nil
	}
	ntype := domain.NotificationOrderStatus
	if order.Status == OrderStatusShipped || order.Status == OrderStatusDelivered {
		ntype = domain.NotificationDeliveryUpdate
	}
	_, err := tx.CreateNotification(Notification{
		UserID:  buyerID,
		Type:    ntype,
		Title:   "Order update",
		Message: fmt.Sprintf("Order %s is now %s", order.ID, order.Status),
		Metadata: NotificationMeta{
			Priority: domain.PriorityNormal,
			OrderID:  order.ID,
		},
	})
	return err
}
