package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"productrag/internal/domain"
)

// SaveDocuments writes documents.json.
func SaveDocuments(path string, docs []domain.Document) error {
	return writeJSON(path, docs)
}

func LoadDocuments(path string) ([]domain.Document, error) {
	var docs []domain.Document
	if err := readJSON(path, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// SaveChunks writes chunks.json.
func SaveChunks(path string, chunks []domain.Chunk) error {
	return writeJSON(path, chunks)
}

func LoadChunks(path string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	if err := readJSON(path, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// SaveArtifact writes embeddings.json after checking it is consistent.
func SaveArtifact(path string, artifact *domain.EmbeddingArtifact) error {
	if err := ValidateArtifact(artifact); err != nil {
		return err
	}
	return writeJSON(path, artifact)
}

func LoadArtifact(path string) (*domain.EmbeddingArtifact, error) {
	var artifact domain.EmbeddingArtifact
	if err := readJSON(path, &artifact); err != nil {
		return nil, err
	}
	if err := ValidateArtifact(&artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ValidateArtifact checks counts and that every vector has the manifest
// dimension.
func ValidateArtifact(a *domain.EmbeddingArtifact) error {
	if len(a.Embeddings) != len(a.Documents) {
		return fmt.Errorf("artifact has %d embeddings for %d documents", len(a.Embeddings), len(a.Documents))
	}
	if a.Metadata.NumDocuments != len(a.Documents) {
		return fmt.Errorf("artifact manifest counts %d documents, found %d", a.Metadata.NumDocuments, len(a.Documents))
	}
	for i, v := range a.Embeddings {
		if len(v) != a.Metadata.EmbeddingDim {
			return fmt.Errorf("%w: artifact vector %d has %d dimensions, manifest says %d",
				domain.ErrDimensionMismatch, i, len(v), a.Metadata.EmbeddingDim)
		}
	}
	return nil
}

// EntriesFromArtifact pairs each chunk with its vector as an index entry.
func EntriesFromArtifact(a *domain.EmbeddingArtifact) []domain.IndexEntry {
	entries := make([]domain.IndexEntry, len(a.Documents))
	for i, chunk := range a.Documents {
		entries[i] = domain.IndexEntry{
			ID:       chunk.ChunkID,
			Text:     chunk.Text,
			Metadata: domain.FlattenMetadata(chunk.Metadata),
			Vector:   a.Embeddings[i],
		}
	}
	return entries
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
