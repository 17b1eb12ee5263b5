package domain

// Tier names the fallback level that produced an answer.
type Tier string

const (
	TierGenerated    Tier = "generated"
	TierVectorSearch Tier = "vector_search"
	TierNoResults    Tier = "no_results"
)

// Answer is the tagged result of a question: Ok when Degraded is false.
type Answer struct {
	Text     string `json:"answer"`
	Tier     Tier   `json:"tier"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Ok wraps a grounded, generated answer.
func Ok(text string) Answer {
	return Answer{Text: text, Tier: TierGenerated}
}

// Degraded wraps an answer produced below full generation.
func Degraded(text string, tier Tier, reason string) Answer {
	return Answer{Text: text, Tier: tier, Degraded: true, Reason: reason}
}
