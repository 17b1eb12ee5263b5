package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productrag/internal/adapter/chunker"
	"productrag/internal/adapter/embedding"
	"productrag/internal/adapter/fs"
	"productrag/internal/adapter/normalizer"
	"productrag/internal/adapter/store"
	"productrag/internal/domain"
)

const catalogCSV = "ID,Name,Category,Subcategory,Material,Size,Dimensions,Weight,Capacity,Features,Source URL\n" +
	"VL001,Vali 20 inch ABS,Vali,Vali kéo,Nhựa ABS,20 inch,36x23x55 cm,2.8 kg,38 lít,Khóa TSA|Bánh xe 360,https://example.vn/vali-20\n" +
	"BL002,Balo Laptop X,Balo,Balo công sở,Vải Polyester,,30x12x45 cm,0.9 kg,,Ngăn laptop 15.6 inch,https://example.vn/balo-x\n" +
	"TX003,Túi Du Lịch Y,Túi xách,Túi du lịch,Vải dù,,50x25x30 cm,0.7 kg,40 lít,Gấp gọn,https://example.vn/tui-y\n" +
	",Không có mã,Vali,,,,,,,,\n"

type pipeline struct {
	dir        string
	preprocess *PreprocessUseCase
	embed      *EmbedUseCase
	encoder    *embedding.Client
	collection *store.Collection
	index      *IndexUseCase
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := t.TempDir()

	ch, err := chunker.NewTextChunker(512, 50, 100)
	require.NoError(t, err)

	encoder := embedding.NewClient(embedding.NewHashBackend(384), embedding.ClientConfig{Normalize: true}, nil, nil)

	st, err := store.NewBoltStore(filepath.Join(dir, "vectorstore", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	collection := store.NewCollection(st, "hungphat_products", store.CollectionOptions{
		Model:    encoder.ModelName(),
		Fallback: embedding.NewTFIDFEncoder(),
	})

	return &pipeline{
		dir:        dir,
		preprocess: NewPreprocessUseCase(fs.NewWalker(nil, nil), normalizer.New(), ch, nil),
		embed:      NewEmbedUseCase(encoder, 2, nil),
		encoder:    encoder,
		collection: collection,
		index:      NewIndexUseCase(collection, nil, encoder.ModelName(), nil),
	}
}

func (p *pipeline) path(name string) string {
	return filepath.Join(p.dir, "processed", name)
}

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	raw := filepath.Join(p.dir, "crawl_data", "products.csv")
	writeCatalog(t, raw, catalogCSV)

	pre, err := p.preprocess.Run(ctx, PreprocessOptions{
		RawDir:        filepath.Join(p.dir, "crawl_data"),
		DocumentsPath: p.path("documents.json"),
		ChunksPath:    p.path("chunks.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, pre.Records)
	assert.Equal(t, 3, pre.Documents)
	assert.Equal(t, 1, pre.Skipped)
	assert.Equal(t, 3, pre.Chunks)

	docs, err := store.LoadDocuments(p.path("documents.json"))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "VL001", docs[0].ID)

	var progress [][2]int
	artifact, err := p.embed.Run(ctx, p.path("chunks.json"), p.path("embeddings.json"), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, progress)
	assert.Equal(t, domain.EmbeddingManifest{ModelName: "hash", EmbeddingDim: 384, NumDocuments: 3}, artifact.Metadata)

	res, err := p.index.Run(ctx, p.path("embeddings.json"), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 3, res.Info.Count)
	assert.Equal(t, domain.StatusReady, res.Info.Status)

	engine := NewEngine(p.collection, p.encoder, &fakeGenerator{err: domain.ErrLLMUnavailable}, staticPrompts{}, nil,
		EngineConfig{TopK: 3}, nil)

	result, err := engine.QueryVectorOnly(ctx, "vali 20 inch", 3)
	require.NoError(t, err)
	require.Len(t, result.Hits, 3)
	assert.Equal(t, "Vali 20 inch ABS", result.Hits[0].Name())
	assert.Greater(t, result.Hits[0].Similarity(), result.Hits[1].Similarity())
	assert.Equal(t, []string{"Khóa TSA", "Bánh xe 360"}, domain.ParseFeatures(result.Hits[0].Metadata))

	answer, err := engine.QueryWithLLM(ctx, "vali 20 inch", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.TierVectorSearch, answer.Tier)
	assert.Contains(t, answer.Text, "\n1. Vali 20 inch ABS")
}

func TestPipelineReindexUpserts(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	raw := filepath.Join(p.dir, "crawl_data", "products.csv")
	writeCatalog(t, raw, catalogCSV)

	_, err := p.preprocess.Run(ctx, PreprocessOptions{
		Files:         []string{raw},
		DocumentsPath: p.path("documents.json"),
		ChunksPath:    p.path("chunks.json"),
	})
	require.NoError(t, err)
	_, err = p.embed.Run(ctx, p.path("chunks.json"), p.path("embeddings.json"), nil)
	require.NoError(t, err)

	_, err = p.index.Run(ctx, p.path("embeddings.json"), false, nil)
	require.NoError(t, err)
	res, err := p.index.Run(ctx, p.path("embeddings.json"), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Info.Count)

	other := NewIndexUseCase(p.collection, nil, "paraphrase-multilingual", nil)
	_, err = other.Run(ctx, p.path("embeddings.json"), false, nil)
	assert.ErrorIs(t, err, domain.ErrParityMismatch)
}

func TestPreprocessPicksLatestFile(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	rawDir := filepath.Join(p.dir, "crawl_data")

	older := filepath.Join(rawDir, "products_old.csv")
	newer := filepath.Join(rawDir, "products_new.csv")
	writeCatalog(t, older, catalogCSV)
	writeCatalog(t, newer, "ID,Name,Category\nVL009,Vali Mới,Vali\n")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	res, err := p.preprocess.Run(ctx, PreprocessOptions{
		RawDir:        rawDir,
		DocumentsPath: p.path("documents.json"),
		ChunksPath:    p.path("chunks.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{newer}, res.Files)
	assert.Equal(t, 1, res.Documents)

	res, err = p.preprocess.Run(ctx, PreprocessOptions{
		RawDir:        rawDir,
		All:           true,
		DocumentsPath: p.path("documents.json"),
		ChunksPath:    p.path("chunks.json"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, 4, res.Documents)
}

func TestPreprocessEmptyCorpus(t *testing.T) {
	p := newPipeline(t)
	raw := filepath.Join(p.dir, "crawl_data", "empty.csv")
	writeCatalog(t, raw, "ID,Name\n")

	_, err := p.preprocess.Run(context.Background(), PreprocessOptions{
		Files:         []string{raw},
		DocumentsPath: p.path("documents.json"),
		ChunksPath:    p.path("chunks.json"),
	})
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestEmbedEmptyChunks(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, store.SaveChunks(p.path("chunks.json"), []domain.Chunk{}))

	_, err := p.embed.Run(context.Background(), p.path("chunks.json"), p.path("embeddings.json"), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}
