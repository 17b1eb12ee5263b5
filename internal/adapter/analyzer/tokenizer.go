package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer splits text into lowercase tokens with stopword removal and
// optional diacritic folding ("túi xách" -> "tui xach").
type Tokenizer struct {
	stopwords map[string]struct{}
	fold      bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(foldDiacritics bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		fold:      foldDiacritics,
	}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		// Stopwords match before folding: "đó" and "đồ" fold to the same token.
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.fold {
			word = Fold(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate token count for LLM budget estimation.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	// Vietnamese syllables split into more subword tokens than English words.
	return int(float64(len(words)) * 1.6)
}

// Fold strips combining marks and maps đ to d.
func Fold(s string) string {
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, s)
	if err != nil {
		out = s
	}
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns common Vietnamese and English function words.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"và", "của", "có", "là", "cho", "với", "các", "những", "một",
		"được", "trong", "này", "đó", "thì", "mà", "để", "từ", "khi",
		"nào", "gì", "không", "tôi", "bạn", "em", "anh", "chị", "ạ",
		"nhé", "ơi", "hãy", "muốn", "cần", "về", "như", "rất", "cũng",
		"the", "and", "for", "with", "of", "to", "in", "on", "is", "are",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
