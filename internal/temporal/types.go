package temporal

// DecisionAuditInput is the input to LogRoutingDecisionWorkflow: the
// decision metadata the router wants replayable history for, never the
// message content that produced it.
type DecisionAuditInput struct {
	RequestID          string  `json:"request_id"`
	Route              string  `json:"route"` // forwarded | recommendation
	OriginalModelID    string  `json:"original_model_id"`
	FinalModelID       string  `json:"final_model_id"`
	Intent             string  `json:"intent,omitempty"`
	Complexity         string  `json:"complexity,omitempty"`
	Confidence         int     `json:"confidence,omitempty"`
	ShouldSwitch       bool    `json:"should_switch"`
	IsConfidential     bool    `json:"is_confidential"`
	Enhanced           bool    `json:"enhanced"`
	OriginalTokens     int     `json:"original_tokens,omitempty"`
	TruncatedTokens    int     `json:"truncated_tokens,omitempty"`
	MessagesRemoved    int     `json:"messages_removed,omitempty"`
	LatencyMs          float64 `json:"latency_ms,omitempty"`
}

// DecisionAuditOutput acknowledges that the audit record was durably
// recorded; the router never inspects it beyond logging errors.
type DecisionAuditOutput struct {
	Recorded bool `json:"recorded"`
}
