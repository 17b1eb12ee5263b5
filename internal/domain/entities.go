package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CatalogRecord is one product as produced by the crawler.
type CatalogRecord struct {
	ID          string
	Name        string
	Category    string
	Subcategory string
	Material    string
	Size        string
	Dimensions  string
	Weight      string
	Capacity    string
	Features    []string
	SourceURL   string
	Variants    []Variant
}

// Variant is one size/spec variant of a catalog product.
type Variant struct {
	Size       string `json:"size"`
	Dimensions string `json:"dimensions"`
	Weight     string `json:"weight"`
	Capacity   string `json:"capacity"`
	Price      string `json:"price,omitempty"`
}

// Metadata is the structured side of a Document.
type Metadata struct {
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Subcategory   string   `json:"subcategory"`
	Material      string   `json:"material"`
	Size          string   `json:"size"`
	SizeNumeric   *float64 `json:"size_numeric"`
	WeightNumeric *float64 `json:"weight_numeric"`
	Features      []string `json:"features"`
	URL           string   `json:"url"`
}

// Document is one normalized product (or product variant).
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Chunk is a bounded slice of a Document's content.
type Chunk struct {
	ChunkID          string        `json:"chunk_id"`
	ParentDocumentID string        `json:"parent_document_id"`
	ChunkIndex       int           `json:"chunk_index"`
	TotalChunks      int           `json:"total_chunks"`
	Text             string        `json:"text"`
	Metadata         ChunkMetadata `json:"metadata"`
}

// ChunkMetadata is the parent metadata plus chunk position fields.
type ChunkMetadata struct {
	Metadata
	ChunkIndex  int `json:"chunk_index"`
	TotalChunks int `json:"total_chunks"`
	ChunkSize   int `json:"chunk_size"`
}

// EmbeddingArtifact is the serialized output of the embed step.
type EmbeddingArtifact struct {
	Embeddings [][]float32       `json:"embeddings"`
	Documents  []Chunk           `json:"documents"`
	Metadata   EmbeddingManifest `json:"metadata"`
}

// EmbeddingManifest describes the model that produced an artifact.
type EmbeddingManifest struct {
	ModelName    string `json:"model_name"`
	EmbeddingDim int    `json:"embedding_dim"`
	NumDocuments int    `json:"num_documents"`
}

// IndexEntry is one persisted row of a collection.
// Metadata values are flat strings; list values are JSON-encoded.
type IndexEntry struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Vector   []float32         `json:"vector"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// Similarity converts the cosine distance for display.
func (h SearchHit) Similarity() float64 {
	return 1 - h.Distance
}

// Name returns the product name from metadata, or "" when absent.
func (h SearchHit) Name() string {
	return h.Metadata["name"]
}

// SearchResult is an ordered list of hits, ascending by distance.
type SearchResult struct {
	Hits []SearchHit `json:"hits"`
}

// Empty reports whether the result holds no hits.
func (r SearchResult) Empty() bool {
	return len(r.Hits) == 0
}

// CollectionStatus is the lifecycle state of a collection handle.
type CollectionStatus string

const (
	StatusNotInitialized CollectionStatus = "not_initialized"
	StatusReady          CollectionStatus = "ready"
	StatusError          CollectionStatus = "error"
)

// CollectionInfo is cheap collection introspection.
type CollectionInfo struct {
	Status      CollectionStatus `json:"status"`
	Name        string           `json:"name"`
	Count       int              `json:"count"`
	Model       string           `json:"model,omitempty"`
	Dimension   int              `json:"dimension,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	InstanceID  string           `json:"instance_id,omitempty"`
}

// FlattenMetadata converts chunk metadata into scalar string values.
func FlattenMetadata(m ChunkMetadata) map[string]string {
	flat := map[string]string{
		"name":         m.Name,
		"category":     m.Category,
		"subcategory":  m.Subcategory,
		"material":     m.Material,
		"size":         m.Size,
		"url":          m.URL,
		"chunk_index":  strconv.Itoa(m.ChunkIndex),
		"total_chunks": strconv.Itoa(m.TotalChunks),
		"chunk_size":   strconv.Itoa(m.ChunkSize),
		"features":     "",
	}
	if m.SizeNumeric != nil {
		flat["size_numeric"] = strconv.FormatFloat(*m.SizeNumeric, 'f', -1, 64)
	}
	if m.WeightNumeric != nil {
		flat["weight_numeric"] = strconv.FormatFloat(*m.WeightNumeric, 'f', -1, 64)
	}
	if len(m.Features) > 0 {
		data, _ := json.Marshal(m.Features)
		flat["features"] = string(data)
	}
	return flat
}

// ParseFeatures decodes the JSON-encoded features value of flat metadata.
func ParseFeatures(flat map[string]string) []string {
	raw := strings.TrimSpace(flat["features"])
	if raw == "" {
		return nil
	}
	var features []string
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return []string{raw}
	}
	return features
}
