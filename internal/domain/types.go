// Package domain holds the request/response types shared by every stage of
// the router: the inbound chat request, the model registry's descriptors,
// and the verdicts produced by the classifier, selector, and enhancer.
package domain

// Message is one turn of a chat-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata carries the routing control fields threaded through a request.
// Fields are read by the orchestrator's transition table (see
// internal/orchestrate) and written back for observability.
type Metadata struct {
	SLMEnabled   bool   `json:"slm_enabled,omitempty"`
	SLMDecision  string `json:"slm_decision,omitempty"` // "", "accept", "reject"
	SLMProcessed bool   `json:"slm_processed,omitempty"`

	ImageGeneration bool   `json:"image_generation,omitempty"`
	VideoGeneration bool   `json:"video_generation,omitempty"`
	Task            string `json:"task,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Outbound observability fields, populated by the orchestrator.
	SLMIntent           string  `json:"slm_intent,omitempty"`
	SLMComplexity       string  `json:"slm_complexity,omitempty"`
	SLMEnhanced         bool    `json:"slm_enhanced,omitempty"`
	SLMSimilarity       float64 `json:"slm_similarity,omitempty"`
	SLMOriginalTokens   int     `json:"slm_original_tokens,omitempty"`
	SLMTruncatedTokens  int     `json:"slm_truncated_tokens,omitempty"`
	SLMMessagesRemoved  int     `json:"slm_messages_removed,omitempty"`
	SLMBudgetExceeded   bool    `json:"slm_budget_exceeded,omitempty"`
	SLMEnhanceReason    string  `json:"slm_enhance_reason,omitempty"`
	IsConfidential      bool    `json:"slm_is_confidential,omitempty"`
	ConfidentialReason  string  `json:"slm_confidential_reason,omitempty"`
}

// ChatRequest is the inbound envelope from the chat client.
type ChatRequest struct {
	ID       string         `json:"id,omitempty"`
	Messages []Message      `json:"messages"`
	ModelID  string         `json:"model"`
	Stream   bool           `json:"stream,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Metadata Metadata       `json:"metadata,omitempty"`

	// AuthzHeader is the bearer credential forwarded to the model registry
	// and the backend dispatcher; never logged, never sent to the
	// classifier/selector/enhancer LLM service (which authenticates with
	// its own process-wide key).
	AuthzHeader string `json:"-"`
}

// LastUserMessage returns the index and content of the last role=="user"
// message, or (-1, "") if none exists.
func (r *ChatRequest) LastUserMessage() (int, string) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return i, r.Messages[i].Content
		}
	}
	return -1, ""
}

// ModelDescriptor is one entry from the model registry.
type ModelDescriptor struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Owner        string   `json:"owner"`
	ContextWindow int     `json:"context_window"`
	Capabilities []string `json:"capabilities,omitempty"`
	IsActive     bool     `json:"is_active"`
}

// Intent labels the purpose of a query, produced by the classifier/selector.
type Intent string

const (
	IntentCodeGeneration  Intent = "code_generation"
	IntentCreativeWriting Intent = "creative_writing"
	IntentQuestionAnswering Intent = "question_answering"
	IntentAnalysis        Intent = "analysis"
	IntentTranslation     Intent = "translation"
	IntentMath            Intent = "math"
	IntentConfidential    Intent = "confidential"
	IntentUnknown         Intent = "unknown"
)

// Complexity buckets query difficulty, produced by the selector.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// RoutingDecision is the Model Selector's output.
type RoutingDecision struct {
	RecommendedModelID string     `json:"recommended_model_id"`
	Intent             Intent     `json:"intent"`
	Complexity         Complexity `json:"complexity"`
	Reason             string     `json:"reason"`
	Confidence         int        `json:"confidence"`
	ShouldSwitch       bool       `json:"should_switch"`
}

// ConfidentialityVerdict is the Confidentiality Classifier's output.
type ConfidentialityVerdict struct {
	IsConfidential bool     `json:"is_confidential"`
	Confidence     int      `json:"confidence"`
	Categories     []string `json:"categories,omitempty"`
	Reason         string   `json:"reason"`
}

// EnhancementVerdict is the Prompt Enhancer's output.
type EnhancementVerdict struct {
	EnhancedPrompt string   `json:"enhanced_prompt"`
	Changes        []string `json:"changes,omitempty"`
	ShouldEnhance  bool     `json:"should_enhance"`
	Reason         string   `json:"reason"`
	Similarity     float64  `json:"similarity"`
}

// Alternative is one scored entry in a recommendation envelope.
type Alternative struct {
	ModelID string `json:"model_id"`
	Score   int    `json:"score"`
}

// RecommendationEnvelope is returned to the client instead of dispatching
// when the selector proposes switching models and the client has opted in
// to seeing recommendations (metadata.slm_enabled).
type RecommendationEnvelope struct {
	Type              string        `json:"type"` // always "model_recommendation"
	CurrentModel      string        `json:"current_model"`
	RecommendedModel  string        `json:"recommended_model"`
	Reason            string        `json:"reason"`
	Intent            Intent        `json:"intent"`
	Complexity        Complexity    `json:"complexity"`
	Confidence        int           `json:"confidence"`
	Alternatives      []Alternative `json:"alternatives"`
	IsConfidential    bool          `json:"is_confidential"`
	ConfidentialInfo  string        `json:"confidential_info,omitempty"`
	Message           string        `json:"message"`
}
