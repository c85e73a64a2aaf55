package core

import "binmap/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// maxRevisions bounds the live revisions per blueprint; values below 1 fall
// back to the default.
func NewDefaultRulesEngine(maxRevisions int) *domain.RulesEngine {
	if maxRevisions < 1 {
		maxRevisions = domain.DefaultMaxRevisions
	}
	engine := domain.NewRulesEngine()
	engine.Register(NewInventoryNonNegativeRule())
	engine.Register(NewLayoutOwnershipRule())
	engine.Register(NewRevisionBoundRule(maxRevisions))
	engine.Register(NewGridConsistencyRule())
	return engine
}
