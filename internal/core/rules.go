package core

import "agrichain/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewOrderParticipantsRule())
	engine.Register(NewReservationConsistencyRule())
	return engine
}
