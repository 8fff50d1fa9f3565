package temporal

import (
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const activityTimeout = 15 * time.Second

// LogRoutingDecisionWorkflow durably records one routing decision. It runs
// fully detached from the request/response path: the chat handler starts
// it and does not wait on its result. A single activity attempt is
// sufficient — RecordDecision never returns a retryable error.
func LogRoutingDecisionWorkflow(ctx workflow.Context, input DecisionAuditInput) (DecisionAuditOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out DecisionAuditOutput
	err := workflow.ExecuteActivity(ctx, (*Activities).RecordDecision, input).Get(ctx, &out)
	if err != nil {
		return DecisionAuditOutput{}, err
	}
	return out, nil
}
