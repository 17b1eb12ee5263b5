package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"productrag/internal/domain"
)

var (
	numberPattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalizer turns catalog records into documents. It holds no state and
// the same record always yields byte-identical documents.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Result reports a batch normalization.
type Result struct {
	Documents []domain.Document
	Records   int
	Skipped   int
	Errors    []string
}

// Normalize produces one document per variant, or one per product when the
// record has no variants. Records without an id or name are rejected with
// domain.ErrSkippedRecord.
func (n *Normalizer) Normalize(rec domain.CatalogRecord) ([]domain.Document, error) {
	rec = clean(rec)
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: missing id (name %q)", domain.ErrSkippedRecord, rec.Name)
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("%w: missing name (id %s)", domain.ErrSkippedRecord, rec.ID)
	}

	if len(rec.Variants) == 0 {
		return []domain.Document{buildDocument(rec.ID, rec)}, nil
	}

	docs := make([]domain.Document, 0, len(rec.Variants))
	for i, v := range rec.Variants {
		expanded := rec
		expanded.Variants = nil
		if len(rec.Variants) > 1 {
			expanded.ID = fmt.Sprintf("%s_V%d", rec.ID, i+1)
		}
		if v.Size != "" {
			expanded.Name = fmt.Sprintf("%s (%s)", rec.Name, v.Size)
			expanded.Size = v.Size
		}
		if v.Dimensions != "" {
			expanded.Dimensions = v.Dimensions
		}
		if v.Weight != "" {
			expanded.Weight = v.Weight
		}
		if v.Capacity != "" {
			expanded.Capacity = v.Capacity
		}
		docs = append(docs, buildDocument(expanded.ID, expanded))
	}
	return docs, nil
}

// NormalizeAll normalizes a batch. Bad records are skipped and counted;
// a repeated document id keeps the first occurrence.
func (n *Normalizer) NormalizeAll(records []domain.CatalogRecord) *Result {
	result := &Result{Records: len(records)}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		docs, err := n.Normalize(rec)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		for _, doc := range docs {
			if _, dup := seen[doc.ID]; dup {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("duplicate document id %s", doc.ID))
				continue
			}
			seen[doc.ID] = struct{}{}
			result.Documents = append(result.Documents, doc)
		}
	}
	return result
}

func buildDocument(id string, rec domain.CatalogRecord) domain.Document {
	var lines []string

	lines = append(lines, "Tên sản phẩm: "+rec.Name)

	if rec.Category != "" {
		category := "Danh mục: " + rec.Category
		if rec.Subcategory != "" {
			category += " - " + rec.Subcategory
		}
		lines = append(lines, category)
	}

	var specs []string
	for _, spec := range []struct{ label, value string }{
		{"Chất liệu", rec.Material},
		{"Kích thước", rec.Size},
		{"Chi tiết", rec.Dimensions},
		{"Trọng lượng", rec.Weight},
		{"Dung tích", rec.Capacity},
	} {
		if spec.value != "" {
			specs = append(specs, "- "+spec.label+": "+spec.value)
		}
	}
	if len(specs) > 0 {
		lines = append(lines, "Thông số kỹ thuật:")
		lines = append(lines, specs...)
	}

	if len(rec.Features) > 0 {
		lines = append(lines, "Tính năng: "+strings.Join(rec.Features, ", "))
	}

	features := rec.Features
	if features == nil {
		features = []string{}
	}

	return domain.Document{
		ID:      id,
		Content: strings.Join(lines, "\n"),
		Metadata: domain.Metadata{
			Name:          rec.Name,
			Category:      rec.Category,
			Subcategory:   rec.Subcategory,
			Material:      rec.Material,
			Size:          rec.Size,
			SizeNumeric:   extractNumber(rec.Size),
			WeightNumeric: extractNumber(rec.Weight),
			Features:      features,
			URL:           rec.SourceURL,
		},
	}
}

// extractNumber returns the first numeric literal in s. No unit conversion.
func extractNumber(s string) *float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

func clean(rec domain.CatalogRecord) domain.CatalogRecord {
	rec.ID = cleanText(rec.ID)
	rec.Name = cleanText(rec.Name)
	rec.Category = cleanText(rec.Category)
	rec.Subcategory = cleanText(rec.Subcategory)
	rec.Material = cleanText(rec.Material)
	rec.Size = cleanText(rec.Size)
	rec.Dimensions = cleanText(rec.Dimensions)
	rec.Weight = cleanText(rec.Weight)
	rec.Capacity = cleanText(rec.Capacity)
	rec.SourceURL = strings.TrimSpace(rec.SourceURL)

	features := make([]string, 0, len(rec.Features))
	for _, f := range rec.Features {
		if f = cleanText(f); f != "" {
			features = append(features, f)
		}
	}
	rec.Features = features

	variants := make([]domain.Variant, len(rec.Variants))
	for i, v := range rec.Variants {
		variants[i] = domain.Variant{
			Size:       cleanText(v.Size),
			Dimensions: cleanText(v.Dimensions),
			Weight:     cleanText(v.Weight),
			Capacity:   cleanText(v.Capacity),
			Price:      cleanText(v.Price),
		}
	}
	rec.Variants = variants
	return rec
}

// cleanText trims, collapses whitespace runs and composes to NFC.
func cleanText(s string) string {
	s = whitespacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
	return norm.NFC.String(s)
}

// SplitFeatures splits a pipe-delimited feature list.
func SplitFeatures(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(raw, "|") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
