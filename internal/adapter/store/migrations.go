package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"productrag/internal/domain"
)

// CurrentSchemaVersion is the on-disk format version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaVersion = []byte("schema_version")

// CollectionMeta records which embedding space a collection lives in.
type CollectionMeta struct {
	Name        string    `json:"name"`
	Model       string    `json:"model,omitempty"`
	Dimension   int       `json:"dimension,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	InstanceID  string    `json:"instance_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fingerprint hashes the parameters that define an embedding space.
// Vectors are comparable only when fingerprints are equal.
func Fingerprint(model string, dimension int) string {
	relevant := struct {
		Model     string `json:"model"`
		Dimension int    `json:"dimension"`
	}{model, dimension}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CheckParity fails when the collection was built with a different model
// or dimension. An unbound collection accepts anything.
func (m *CollectionMeta) CheckParity(model string, dimension int) error {
	if m == nil || m.Fingerprint == "" {
		return nil
	}
	if dimension != 0 && m.Dimension != dimension {
		return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, encoder produces %d",
			domain.ErrDimensionMismatch, m.Name, m.Dimension, dimension)
	}
	if model != "" && m.Model != model {
		return fmt.Errorf("%w: collection %s was built with %s, encoder is %s",
			domain.ErrParityMismatch, m.Name, m.Model, model)
	}
	return nil
}

func (s *BoltStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSchema).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		v, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("invalid schema version %q", data)
		}
		version = v
		return nil
	})
	return version, err
}

// Migrate stamps a fresh database and refuses one written by a newer
// release.
func (s *BoltStore) Migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database created by newer version (v%d > v%d)", version, CurrentSchemaVersion)
	}
	if version == CurrentSchemaVersion {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchema).Put(keySchemaVersion, []byte(strconv.Itoa(CurrentSchemaVersion)))
	})
}

func getMeta(tx *bbolt.Tx, name string) (*CollectionMeta, error) {
	data := tx.Bucket(bucketCollections).Get([]byte(name))
	if data == nil {
		return nil, nil
	}
	var meta CollectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode collection meta: %w", err)
	}
	return &meta, nil
}

func putMeta(tx *bbolt.Tx, meta *CollectionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketCollections).Put([]byte(meta.Name), data)
}
