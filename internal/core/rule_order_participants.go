package core

import (
	"context"
	"fmt"

	"agrichain/pkg/domain"
)

// NewOrderParticipantsRule returns the in-transaction rule requiring that the
// participant pair relevant to an order's type is populated.
func NewOrderParticipantsRule() domain.Rule {
	return orderParticipantsRule{}
}

type orderParticipantsRule struct{}

func (orderParticipantsRule) Name() string { return "order_participants" }

func (orderParticipantsRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOrder || change.Action == domain.ActionDelete {
			continue
		}
		order, ok := change.After.(domain.Order)
		if !ok {
			continue
		}
		if id, _, ok := order.SellerID(); !ok || id == "" {
			res.Violations = append(res.Violations, violationFor(order, "seller"))
			continue
		}
		if id, _, ok := order.BuyerID(); !ok || id == "" {
			res.Violations = append(res.Violations, violationFor(order, "buyer"))
		}
	}
	return res, nil
}

func violationFor(order domain.Order, side string) domain.Violation {
	return domain.Violation{
		Rule:     "order_participants",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("%s order %s missing %s participant", order.Type, order.ID, side),
		Entity:   domain.EntityOrder,
		EntityID: order.ID,
	}
}
