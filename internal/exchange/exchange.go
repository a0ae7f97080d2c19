// Package exchange implements C5, the Exchange Rule: stateless predicates
// deciding which inbound reference-copy events the local repository
// actually persists. Grounded on the teacher's config.Config — a flat
// struct of settings read once at startup — here narrowed to exactly the
// fields spec §6 lists as the exchange rule's configuration surface.
package exchange

import (
	"github.com/nucleus/omrs-core/internal/config"
	"github.com/nucleus/omrs-core/internal/instance"
)

// Rule is C5.
type Rule struct {
	saveRule      config.SaveExchangeRule
	selectedTypes map[string]struct{} // by TypeDefSummary.Name, only used for SELECTED_TYPEDEFS
}

func New(cfg *config.Config) *Rule {
	selected := make(map[string]struct{}, len(cfg.SelectedTypesToProcess))
	for _, t := range cfg.SelectedTypesToProcess {
		selected[t] = struct{}{}
	}
	return &Rule{saveRule: cfg.SaveExchangeRule, selectedTypes: selected}
}

// ProcessInstanceEvent reports whether an inbound NEW/UPDATED/DELETED
// instance event for the given type should be saved as a reference copy
// (spec §6). isTypeActive reflects whether the type registry currently
// marks the instance's type active — the Open Question on whether
// inactive types gate saving is resolved in favor of always gating on it,
// regardless of SaveExchangeRule (see design notes).
func (r *Rule) ProcessInstanceEvent(t instance.TypeDefSummary, isTypeActive bool) bool {
	if !isTypeActive {
		return false
	}
	switch r.saveRule {
	case config.SaveRuleNone:
		return false
	case config.SaveRuleAll:
		return true
	case config.SaveRuleSelectedTypeDefs:
		_, ok := r.selectedTypes[t.Name]
		return ok
	case config.SaveRuleJustTypeDefs, config.SaveRuleLearnedTypeDefs, config.SaveRuleDesiredTypeDefs:
		// These three rules gate on type-registry state this core doesn't
		// yet track (which TypeDefs were "learned" vs "desired" at
		// startup) — conservatively treated as SELECTED_TYPEDEFS until
		// that bookkeeping exists.
		_, ok := r.selectedTypes[t.Name]
		return ok
	default:
		return false
	}
}

// LearnInstanceEvent reports whether the save rule is LEARNED_TYPEDEFS or
// ALL. The event processor checks it before asking an instance's home to
// refresh a reference copy of an instance it retrieved through a federated
// read and does not hold locally. It does not add any TypeDef to the
// local type registry.
func (r *Rule) LearnInstanceEvent() bool {
	return r.saveRule == config.SaveRuleLearnedTypeDefs || r.saveRule == config.SaveRuleAll
}
