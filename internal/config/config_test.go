package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nucleus/omrs-core/internal/config"
)

func TestLoad_AppliesDefaultsWithNoEnvironmentSet(t *testing.T) {
	c := config.Load()
	assert.Equal(t, "4010", c.Port)
	assert.Equal(t, config.SaveRuleAll, c.SaveExchangeRule)
	assert.Equal(t, []string{"default"}, c.CohortNames)
	assert.Equal(t, 1000, c.EventQueueDepth)
	assert.Equal(t, "drop-oldest", c.EventQueueOverflow)
	assert.True(t, c.ProduceEventsForRealConnector)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("OMRS_API_PORT", "9999")
	t.Setenv("OMRS_LOCAL_COLLECTION_ID", "local-1")
	t.Setenv("OMRS_EVENT_QUEUE_DEPTH", "250")
	t.Setenv("OMRS_SELECTED_TYPES", "Asset, Schema ,  ,Glossary")
	t.Setenv("OMRS_AUTH_DEBUG", "true")

	c := config.Load()
	assert.Equal(t, "9999", c.Port)
	assert.Equal(t, "local-1", c.LocalMetadataCollectionID)
	assert.Equal(t, 250, c.EventQueueDepth)
	assert.Equal(t, []string{"Asset", "Schema", "Glossary"}, c.SelectedTypesToProcess)
	assert.True(t, c.AuthDebug)
}

func TestLoad_InvalidIntEnvironmentValueFallsBackToDefault(t *testing.T) {
	t.Setenv("OMRS_EVENT_QUEUE_DEPTH", "not-a-number")
	c := config.Load()
	assert.Equal(t, 1000, c.EventQueueDepth)
}

func TestValidate_RequiresLocalCollectionID(t *testing.T) {
	c := &config.Config{}
	assert.Error(t, c.Validate())

	c.LocalMetadataCollectionID = "local-1"
	assert.NoError(t, c.Validate())
}
