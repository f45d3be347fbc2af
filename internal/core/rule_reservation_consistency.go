package core

import (
	"context"
	"fmt"

	"agrichain/pkg/domain"
)

// NewReservationConsistencyRule returns a warn-only rule reporting inventory
// records whose reserved quantity exceeds current stock. Over-reservation is
// allowed to commit; the rule only surfaces it.
func NewReservationConsistencyRule() domain.Rule {
	return reservationConsistencyRule{}
}

type reservationConsistencyRule struct{}

func (reservationConsistencyRule) Name() string { return "reservation_consistency" }

func (reservationConsistencyRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityInventoryItem {
			continue
		}
		if item, ok := change.After.(domain.InventoryItem); ok {
			touched[item.Key()] = struct{}{}
		}
	}
	if len(touched) == 0 {
		return domain.Result{}, nil
	}

	res := domain.Result{}
	for _, item := range view.ListInventoryItems() {
		if _, ok := touched[item.Key()]; !ok {
			continue
		}
		if item.ReservedQuantity > item.CurrentQuantity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "reservation_consistency",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("item %s owner %s reserved %.2f exceeds current %.2f", item.ItemID, item.OwnerID, item.ReservedQuantity, item.CurrentQuantity),
				Entity:   domain.EntityInventoryItem,
				EntityID: item.Key(),
			})
		}
	}
	return res, nil
}
