package usecase

import (
	"fmt"
	"strings"

	"productrag/internal/adapter/prompt"
	"productrag/internal/domain"
	"productrag/internal/port"
)

const (
	contextSnippetRunes  = 200
	fallbackSnippetRunes = 150
	missingField         = "N/A"
	defaultProductName   = "Sản phẩm"
)

// ContextBuilder assembles the generation context from ranked hits.
type ContextBuilder struct {
	tokenizer port.Tokenizer
	budget    int
}

// NewContextBuilder creates a context builder. A budget <= 0 or a nil
// tokenizer keeps every hit.
func NewContextBuilder(tokenizer port.Tokenizer, budget int) *ContextBuilder {
	return &ContextBuilder{
		tokenizer: tokenizer,
		budget:    budget,
	}
}

// Build renders the context template with the system prompt, the formatted
// products and the question.
func (b *ContextBuilder) Build(template, systemPrompt string, hits []domain.SearchHit, question string) string {
	return prompt.RenderContext(template, systemPrompt, b.FormatProducts(hits), question)
}

// FormatProducts renders hits as numbered product blocks in rank order.
// When a token budget is set, blocks are added until the next one would
// exceed it; the top hit is always kept.
func (b *ContextBuilder) FormatProducts(hits []domain.SearchHit) string {
	parts := make([]string, 0, len(hits))
	used := 0

	for _, hit := range hits {
		block := formatProduct(len(parts)+1, hit)
		if b.budget > 0 && b.tokenizer != nil {
			tokens := b.tokenizer.CountTokens(block)
			if len(parts) > 0 && used+tokens > b.budget {
				break
			}
			used += tokens
		}
		parts = append(parts, block)
	}

	return strings.Join(parts, "\n\n")
}

func formatProduct(i int, hit domain.SearchHit) string {
	return fmt.Sprintf("Sản phẩm %d:\n- Tên: %s\n- Danh mục: %s\n- Chi tiết: %s\n- Độ liên quan: %.2f",
		i,
		orDefault(hit.Metadata["name"], missingField),
		orDefault(hit.Metadata["category"], missingField),
		snippet(hit.Text, contextSnippetRunes),
		hit.Similarity(),
	)
}

// FormatVectorResults renders hits as the plain numbered list returned when
// generation fails.
func FormatVectorResults(hits []domain.SearchHit) string {
	lines := []string{"Dựa trên tìm kiếm vector, tôi tìm thấy:\n"}
	for i, hit := range hits {
		lines = append(lines,
			fmt.Sprintf("\n%d. %s", i+1, orDefault(hit.Name(), defaultProductName)),
			fmt.Sprintf("   Độ liên quan: %.2f", hit.Similarity()),
			fmt.Sprintf("   %s...", headRunes(hit.Text, fallbackSnippetRunes)),
		)
	}
	return strings.Join(lines, "\n")
}

// snippet cuts text to n runes and marks the cut.
func snippet(text string, n int) string {
	head := headRunes(text, n)
	if len(head) < len(text) {
		return head + "..."
	}
	return text
}

func headRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
