package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"productrag/config"
	"productrag/internal/logger"
	"productrag/internal/usecase"
)

var indexReset bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load the embedding artifact into the vector collection",
	Long: `Load the embedding artifact into the configured collection.

By default the collection is reset first: every existing entry is
permanently discarded and the collection is rebuilt from the artifact.
Pass --reset=false to upsert into the existing collection instead; the
artifact must then come from the same embedding model.

Examples:
  productrag index
  productrag index --reset=false`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexReset, "reset", true, "discard existing entries before indexing (destructive)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	result, err := index(cmd, cfg, root, indexReset)
	if err != nil {
		return err
	}

	fmt.Printf("Indexing complete:\n")
	fmt.Printf("  Collection:  %s\n", result.Info.Name)
	fmt.Printf("  Indexed:     %d\n", result.Indexed)
	fmt.Printf("  Count:       %d\n", result.Info.Count)
	fmt.Printf("  Model:       %s (%d dimensions)\n", result.Info.Model, result.Info.Dimension)
	fmt.Printf("\nIndex stored at: %s\n", cfg.IndexDBPath(root))
	return nil
}

func index(cmd *cobra.Command, cfg *config.Config, root string, reset bool) (*usecase.IndexResult, error) {
	log := logger.Get()

	embCache, rdb, err := newEmbeddingCache(cfg, log)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// The model name is fixed by the provider config; nothing is loaded here.
	encoder, err := newEncoder(cfg, embCache, log)
	if err != nil {
		return nil, err
	}

	st, collection, err := openCollection(cfg, root, encoder.ModelName(), log)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if reset {
		fmt.Printf("Resetting collection %s...\n", cfg.VectorStore.Collection)
	}

	uc := usecase.NewIndexUseCase(collection, embCache, encoder.ModelName(), log)
	result, err := uc.Run(cmd.Context(), cfg.ArtifactPath(root), reset, newProgress("Indexing"))
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return result, nil
}
