package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/nucleus/omrs-core/internal/instance"
)

// =============================================================================
// WORKFLOW NAMES
// =============================================================================

const (
	RefreshReferenceCopyWorkflowName = "refreshReferenceCopyWorkflow"
	BatchReferenceCopyWorkflowName   = "batchReferenceCopyWorkflow"
)

// RefreshWorkflowID derives a workflow ID from the instance's GUID and home
// collection so that concurrent refresh requests for the same instance
// collapse onto a single Temporal workflow execution instead of racing each
// other (spec P5 "refresh idempotency").
func RefreshWorkflowID(guid, homeMetadataCollectionID string) string {
	return fmt.Sprintf("refresh-%s-%s", homeMetadataCollectionID, guid)
}

// =============================================================================
// ACTIVITY OPTIONS
// =============================================================================

var defaultActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	},
}

// =============================================================================
// REFRESH REFERENCE COPY WORKFLOW
// =============================================================================

const (
	refreshPollInterval = 5 * time.Second
	refreshMaxAttempts  = 6
)

// RefreshReferenceCopyInput is the input for RefreshReferenceCopyWorkflowFunc.
type RefreshReferenceCopyInput struct {
	GUID                     string       `json:"guid"`
	Kind                     InstanceKind `json:"kind"`
	HomeMetadataCollectionID string       `json:"homeMetadataCollectionId"`
}

// RefreshReferenceCopyWorkflowFunc drives the REFRESH_*_REQUEST / REFRESHED_*
// round trip of spec §4.3 as a durable saga: request the refresh, then poll
// local storage until the home's REFRESHED_* event (delivered out-of-band
// to the event processor) lands, or give up after refreshMaxAttempts.
func RefreshReferenceCopyWorkflowFunc(ctx workflow.Context, input RefreshReferenceCopyInput) error {
	logger := workflow.GetLogger(ctx)
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	err := workflow.ExecuteActivity(actCtx, "RequestRefresh", RequestRefreshInput{
		GUID:                     input.GUID,
		Kind:                     input.Kind,
		HomeMetadataCollectionID: input.HomeMetadataCollectionID,
	}).Get(ctx, nil)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < refreshMaxAttempts; attempt++ {
		if err := workflow.Sleep(ctx, refreshPollInterval); err != nil {
			return err
		}
		var check CheckReferenceCopyOutput
		if err := workflow.ExecuteActivity(actCtx, "CheckReferenceCopy", CheckReferenceCopyInput{
			GUID: input.GUID,
			Kind: input.Kind,
		}).Get(ctx, &check); err != nil {
			return err
		}
		if check.Known {
			logger.Info("reference copy refreshed", "guid", input.GUID, "version", check.Version, "attempt", attempt)
			return nil
		}
	}

	return temporal.NewApplicationError(
		fmt.Sprintf("reference copy %s not refreshed after %d attempts", input.GUID, refreshMaxAttempts),
		"RefreshTimeout")
}

// =============================================================================
// BATCH REFERENCE COPY WORKFLOW
// =============================================================================

// BatchReferenceCopyInput is the input for BatchReferenceCopyWorkflowFunc.
type BatchReferenceCopyInput struct {
	Graph *instance.InstanceGraph `json:"graph"`
}

// BatchReferenceCopyWorkflowFunc drives BATCH_INSTANCES ingestion, one
// activity per instance in the graph, matching the teacher's
// one-activity-per-step workflow shape (e.g. IngestionRunWorkflowFunc's
// per-slice activity calls).
func BatchReferenceCopyWorkflowFunc(ctx workflow.Context, input BatchReferenceCopyInput) error {
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	if input.Graph == nil {
		return nil
	}

	var futures []workflow.Future
	for _, e := range input.Graph.Entities {
		futures = append(futures, workflow.ExecuteActivity(actCtx, "IngestEntity", e))
	}
	for _, r := range input.Graph.Relationships {
		futures = append(futures, workflow.ExecuteActivity(actCtx, "IngestRelationship", r))
	}

	var firstErr error
	for _, f := range futures {
		if err := f.Get(ctx, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
