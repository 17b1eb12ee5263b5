package normalizer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"productrag/internal/domain"
)

// LoadFile reads catalog records from a .json or .csv file.
func LoadFile(path string) ([]domain.CatalogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".csv":
		return LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported catalog file type: %s", path)
	}
}

// flexString accepts JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

type rawProduct struct {
	ProductInfo struct {
		ID          flexString `json:"id"`
		Name        flexString `json:"name"`
		Category    flexString `json:"category"`
		Subcategory flexString `json:"subcategory"`
	} `json:"product_info"`
	Specifications struct {
		Material   flexString   `json:"material"`
		Size       flexString   `json:"size"`
		Dimensions flexString   `json:"dimensions"`
		Weight     flexString   `json:"weight"`
		Capacity   flexString   `json:"capacity"`
		Features   []flexString `json:"features"`
	} `json:"specifications"`
	Variants []struct {
		Size       flexString `json:"size"`
		Dimensions flexString `json:"dimensions"`
		Weight     flexString `json:"weight"`
		Capacity   flexString `json:"capacity"`
		Price      flexString `json:"price"`
	} `json:"variants"`
	Images   map[string][]string `json:"images"`
	Metadata struct {
		SourceURL flexString `json:"source_url"`
	} `json:"metadata"`
}

// LoadJSON reads the crawler's JSON array. Both the flat specification
// shape and the variants shape are accepted.
func LoadJSON(r io.Reader) ([]domain.CatalogRecord, error) {
	var raw []rawProduct
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog JSON: %w", err)
	}

	records := make([]domain.CatalogRecord, 0, len(raw))
	for _, p := range raw {
		rec := domain.CatalogRecord{
			ID:          string(p.ProductInfo.ID),
			Name:        string(p.ProductInfo.Name),
			Category:    string(p.ProductInfo.Category),
			Subcategory: string(p.ProductInfo.Subcategory),
			Material:    string(p.Specifications.Material),
			Size:        string(p.Specifications.Size),
			Dimensions:  string(p.Specifications.Dimensions),
			Weight:      string(p.Specifications.Weight),
			Capacity:    string(p.Specifications.Capacity),
			SourceURL:   string(p.Metadata.SourceURL),
		}
		for _, f := range p.Specifications.Features {
			rec.Features = append(rec.Features, string(f))
		}
		for _, v := range p.Variants {
			rec.Variants = append(rec.Variants, domain.Variant{
				Size:       string(v.Size),
				Dimensions: string(v.Dimensions),
				Weight:     string(v.Weight),
				Capacity:   string(v.Capacity),
				Price:      string(v.Price),
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

// csvColumns maps lowercased CSV headers to record fields.
var csvColumns = map[string]func(*domain.CatalogRecord, string){
	"id":          func(r *domain.CatalogRecord, v string) { r.ID = v },
	"name":        func(r *domain.CatalogRecord, v string) { r.Name = v },
	"category":    func(r *domain.CatalogRecord, v string) { r.Category = v },
	"subcategory": func(r *domain.CatalogRecord, v string) { r.Subcategory = v },
	"material":    func(r *domain.CatalogRecord, v string) { r.Material = v },
	"size":        func(r *domain.CatalogRecord, v string) { r.Size = v },
	"dimensions":  func(r *domain.CatalogRecord, v string) { r.Dimensions = v },
	"weight":      func(r *domain.CatalogRecord, v string) { r.Weight = v },
	"capacity":    func(r *domain.CatalogRecord, v string) { r.Capacity = v },
	"features":    func(r *domain.CatalogRecord, v string) { r.Features = SplitFeatures(v) },
	"source url":  func(r *domain.CatalogRecord, v string) { r.SourceURL = v },
}

// LoadCSV reads the flattened one-row-per-variant CSV. Columns are matched
// by header name; unknown columns are ignored.
func LoadCSV(r io.Reader) ([]domain.CatalogRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	setters := make([]func(*domain.CatalogRecord, string), len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		setters[i] = csvColumns[name]
	}

	var records []domain.CatalogRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		var rec domain.CatalogRecord
		for i, value := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, value)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
