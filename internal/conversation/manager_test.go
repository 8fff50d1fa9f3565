package conversation

import (
	"fmt"
	"testing"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/estimate"
	"github.com/stretchr/testify/require"
)

func TestTokenLimit_PrefixMatch(t *testing.T) {
	require.Equal(t, 8000, TokenLimit("llama-3.1-8b-instant"))
	require.Equal(t, 128000, TokenLimit("LLAMA-3.1-70B-Versatile"))
	require.Equal(t, defaultModelTokenLimit, TokenLimit("some-unknown-model"))
}

func TestNew_MaxHistoryDerivation(t *testing.T) {
	m := New("llama-3.1-8b-instant")
	require.Equal(t, 8000, m.TokenLimit)
	require.Equal(t, 4000, m.MaxHistoryTokens) // min(4000, 8000-1500)=4000

	m2 := New("some-unknown-model")
	require.Equal(t, defaultModelTokenLimit, m2.TokenLimit)
	require.Equal(t, defaultModelTokenLimit-reservedCompletionTokens, m2.MaxHistoryTokens)
}

func TestSlidingWindow_EmptyConversationReturnsInput(t *testing.T) {
	m := New("default")
	msgs := []domain.Message{{Role: "system", Content: "be nice"}}
	require.Equal(t, msgs, m.Truncate(msgs, SlidingWindow))
}

func TestSlidingWindow_NoUserMessageReturnsAll(t *testing.T) {
	m := New("default")
	msgs := []domain.Message{
		{Role: "system", Content: "sys"},
		{Role: "assistant", Content: "hello"},
	}
	got := m.Truncate(msgs, SlidingWindow)
	require.Equal(t, msgs, got)
}

func TestSlidingWindow_PreservesLastUserMessage(t *testing.T) {
	m := New("llama-3.1-8b-instant")
	msgs := []domain.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "continue"},
	}
	out := m.Truncate(msgs, SlidingWindow)
	require.NotEmpty(t, out)
	last := out[len(out)-1]
	require.Equal(t, "user", last.Role)
	require.Equal(t, "continue", last.Content)
}

func TestSlidingWindow_BudgetScenario(t *testing.T) {
	// Scenario S5: llama-3.1-8b-instant (limit 8000, max_history=4000).
	m := New("llama-3.1-8b-instant")
	require.Equal(t, 4000, m.MaxHistoryTokens)

	msgs := []domain.Message{{Role: "system", Content: wordsOfLength(200)}}
	for i := 0; i < 40; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, domain.Message{Role: role, Content: wordsOfLength(300)})
	}
	msgs = append(msgs, domain.Message{Role: "user", Content: "continue"})

	out := m.Truncate(msgs, SlidingWindow)

	require.Equal(t, "system", out[0].Role)
	last := out[len(out)-1]
	require.Equal(t, "user", last.Role)
	require.Equal(t, "continue", last.Content)

	systemTokens := estimate.Messages([]domain.Message{out[0]})
	total := estimate.Messages(out) - systemTokens
	require.LessOrEqual(t, total, 3800)
	require.Less(t, len(out), len(msgs), "expected some messages to be truncated")
}

func TestImportanceBased_ShortConversationUnchanged(t *testing.T) {
	m := New("default")
	msgs := []domain.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
	}
	require.Equal(t, msgs, m.Truncate(msgs, ImportanceBased))
}

func TestImportanceBased_InsertsTruncationMarker(t *testing.T) {
	m := New("llama-3.1-70b-versatile")
	msgs := []domain.Message{{Role: "system", Content: "sys"}}
	msgs = append(msgs, domain.Message{Role: "user", Content: "first user message sets context"})
	for i := 0; i < 10; i++ {
		msgs = append(msgs, domain.Message{Role: "assistant", Content: fmt.Sprintf("reply %d", i)})
	}
	out := m.Truncate(msgs, ImportanceBased)

	require.Equal(t, "system", out[0].Role)
	require.Equal(t, "first user message sets context", out[1].Content)
	require.Contains(t, out[2].Content, "messages truncated for context")
	require.Equal(t, 4, len(out)-3)
}

func TestAddContextSummary_InsertsAfterLeadingSystemMessages(t *testing.T) {
	msgs := []domain.Message{
		{Role: "system", Content: "s1"},
		{Role: "system", Content: "s2"},
		{Role: "user", Content: "hi"},
	}
	out := AddContextSummary(msgs, "earlier we discussed X")
	require.Len(t, out, 4)
	require.Equal(t, "system", out[2].Role)
	require.Equal(t, "Context summary: earlier we discussed X", out[2].Content)
	require.Equal(t, "hi", out[3].Content)
}

func wordsOfLength(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "w "
	}
	return s
}
