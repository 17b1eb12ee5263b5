package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"productrag/config"
	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/usecase"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Encode chunks into an embedding artifact",
	Long: `Encode every chunk written by preprocess with the configured embedding
model and save the vectors with a manifest of the model and dimension.

Examples:
  productrag embed
  EMBEDDING_PROVIDER=openai EMBEDDING_MODEL=text-embedding-3-small productrag embed`,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	artifact, err := embed(cmd, cfg, root)
	if err != nil {
		return err
	}

	fmt.Printf("Embedding complete:\n")
	fmt.Printf("  Model:      %s (%s)\n", artifact.Metadata.ModelName, cfg.Embedding.Provider)
	fmt.Printf("  Dimension:  %d\n", artifact.Metadata.EmbeddingDim)
	fmt.Printf("  Chunks:     %d\n", artifact.Metadata.NumDocuments)
	fmt.Printf("\nArtifact stored at: %s\n", cfg.ArtifactPath(root))
	return nil
}

func embed(cmd *cobra.Command, cfg *config.Config, root string) (*domain.EmbeddingArtifact, error) {
	log := logger.Get()

	embCache, rdb, err := newEmbeddingCache(cfg, log)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	encoder, err := newEncoder(cfg, embCache, log)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Loading embedding model %s...\n", cfg.Embedding.Model)
	uc := usecase.NewEmbedUseCase(encoder, cfg.Embedding.BatchSize, log)
	artifact, err := uc.Run(cmd.Context(), cfg.ChunksPath(root), cfg.ArtifactPath(root), newProgress("Embedding"))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return artifact, nil
}
