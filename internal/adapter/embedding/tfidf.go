package embedding

import (
	"errors"
	"math"
	"sort"
	"sync"

	"productrag/internal/adapter/analyzer"
	"productrag/internal/port"
)

// TFIDFEncoder is a corpus-fitted TF-IDF vectorizer. Its vectors live in a
// different space from any neural model, so the vector index uses it only
// for degraded text search.
type TFIDFEncoder struct {
	mu         sync.RWMutex
	tokenizer  *analyzer.Tokenizer
	vocabulary map[string]int
	idf        []float64
	fitted     bool
}

var _ port.TextEncoder = (*TFIDFEncoder)(nil)

func NewTFIDFEncoder() *TFIDFEncoder {
	return &TFIDFEncoder{
		tokenizer:  analyzer.NewTokenizer(true),
		vocabulary: make(map[string]int),
	}
}

func (e *TFIDFEncoder) Name() string { return "tfidf" }

// Fit builds the vocabulary and smoothed IDF values from corpus.
func (e *TFIDFEncoder) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF fit")
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenizer.Tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("no tokens found in corpus")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		vocabulary[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	e.mu.Lock()
	e.vocabulary = vocabulary
	e.idf = idf
	e.fitted = true
	e.mu.Unlock()
	return nil
}

// EncodeText returns the L2-normalized TF-IDF vector of text.
func (e *TFIDFEncoder) EncodeText(text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, errors.New("tfidf encoder not fitted")
	}

	vec := make([]float64, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenizer.Tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}

	out := make([]float32, len(vec))
	if total == 0 {
		return out, nil
	}

	var norm float64
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx]
		norm += vec[idx] * vec[idx]
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// Dimension is the vocabulary size; 0 before Fit.
func (e *TFIDFEncoder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}
