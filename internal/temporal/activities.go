package temporal

import (
	"context"
	"log/slog"
)

// Activities holds the dependencies routing decision activities need. The
// router keeps no database of its own (spec forbids persistence beyond
// short-lived HTTP clients), so RecordDecision's only side effect is a
// structured log line — the durable record of the call lives in
// Temporal's own workflow history, replayable independent of the router
// process.
type Activities struct {
	Logger *slog.Logger
}

// NewActivities wires an Activities set from its logger.
func NewActivities(logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{Logger: logger}
}

// RecordDecision is the sole activity: it emits the decision metadata as a
// structured audit line. It never touches message content and never
// returns an error that would cause Temporal to retry — a missed audit
// line is not worth re-running.
func (a *Activities) RecordDecision(ctx context.Context, input DecisionAuditInput) (DecisionAuditOutput, error) {
	a.Logger.Info("routing decision",
		slog.String("request_id", input.RequestID),
		slog.String("route", input.Route),
		slog.String("original_model_id", input.OriginalModelID),
		slog.String("final_model_id", input.FinalModelID),
		slog.String("intent", input.Intent),
		slog.String("complexity", input.Complexity),
		slog.Int("confidence", input.Confidence),
		slog.Bool("should_switch", input.ShouldSwitch),
		slog.Bool("is_confidential", input.IsConfidential),
		slog.Bool("enhanced", input.Enhanced),
		slog.Int("original_tokens", input.OriginalTokens),
		slog.Int("truncated_tokens", input.TruncatedTokens),
		slog.Int("messages_removed", input.MessagesRemoved),
		slog.Float64("latency_ms", input.LatencyMs),
	)
	return DecisionAuditOutput{Recorded: true}, nil
}
