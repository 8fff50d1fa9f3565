package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

// actsRef is a nil *Activities pointer used to create bound method references
// for Temporal mock registration. The SDK only uses reflection to extract the
// method name — no actual method body runs.
var actsRef *Activities

func sampleDecisionInput() DecisionAuditInput {
	return DecisionAuditInput{
		RequestID:       "req-001",
		Route:           "forwarded",
		OriginalModelID: "model-a",
		FinalModelID:    "model-b",
		Intent:          "code_generation",
		Complexity:      "complex",
		Confidence:      82,
		ShouldSwitch:    true,
		IsConfidential:  false,
		Enhanced:        true,
		OriginalTokens:  512,
		TruncatedTokens: 400,
		MessagesRemoved: 2,
		LatencyMs:       48.5,
	}
}

func TestLogRoutingDecisionWorkflow_Success(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	input := sampleDecisionInput()
	env.OnActivity(actsRef.RecordDecision, mock.Anything, input).
		Return(DecisionAuditOutput{Recorded: true}, nil)

	env.ExecuteWorkflow(LogRoutingDecisionWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DecisionAuditOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.True(t, out.Recorded)
}

func TestLogRoutingDecisionWorkflow_ActivityErrorPropagates(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	input := sampleDecisionInput()
	env.OnActivity(actsRef.RecordDecision, mock.Anything, input).
		Return(DecisionAuditOutput{}, errors.New("record failed"))

	env.ExecuteWorkflow(LogRoutingDecisionWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
