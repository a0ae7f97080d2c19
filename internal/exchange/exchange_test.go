package exchange_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nucleus/omrs-core/internal/config"
	"github.com/nucleus/omrs-core/internal/exchange"
	"github.com/nucleus/omrs-core/internal/instance"
)

func TestRule_ProcessInstanceEvent_InactiveTypeAlwaysRejected(t *testing.T) {
	r := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleAll})
	assert.False(t, r.ProcessInstanceEvent(instance.TypeDefSummary{Name: "Asset"}, false))
}

func TestRule_ProcessInstanceEvent_None(t *testing.T) {
	r := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleNone})
	assert.False(t, r.ProcessInstanceEvent(instance.TypeDefSummary{Name: "Asset"}, true))
}

func TestRule_ProcessInstanceEvent_All(t *testing.T) {
	r := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleAll})
	assert.True(t, r.ProcessInstanceEvent(instance.TypeDefSummary{Name: "Asset"}, true))
}

func TestRule_ProcessInstanceEvent_SelectedTypeDefs(t *testing.T) {
	r := exchange.New(&config.Config{
		SaveExchangeRule:       config.SaveRuleSelectedTypeDefs,
		SelectedTypesToProcess: []string{"Asset"},
	})
	assert.True(t, r.ProcessInstanceEvent(instance.TypeDefSummary{Name: "Asset"}, true))
	assert.False(t, r.ProcessInstanceEvent(instance.TypeDefSummary{Name: "Other"}, true))
}

func TestRule_LearnInstanceEvent(t *testing.T) {
	learned := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleLearnedTypeDefs})
	assert.True(t, learned.LearnInstanceEvent())

	all := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleAll})
	assert.True(t, all.LearnInstanceEvent())

	none := exchange.New(&config.Config{SaveExchangeRule: config.SaveRuleNone})
	assert.False(t, none.LearnInstanceEvent())
}
