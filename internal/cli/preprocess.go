package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"productrag/config"
	"productrag/internal/adapter/chunker"
	"productrag/internal/adapter/fs"
	"productrag/internal/adapter/normalizer"
	"productrag/internal/logger"
	"productrag/internal/usecase"
)

var preprocessAll bool

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [file...]",
	Short: "Normalize and chunk catalog files",
	Long: `Load crawled catalog files (JSON or CSV), normalize every product into a
document and split documents into chunks.

Without arguments the most recently modified catalog file under the raw
directory is used; --all ingests every matching file.

Examples:
  productrag preprocess
  productrag preprocess --all
  productrag preprocess crawl_data/products_2024.csv`,
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)
	preprocessCmd.Flags().BoolVar(&preprocessAll, "all", false, "ingest every catalog file instead of the latest")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	files := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		files = append(files, abs)
	}

	result, err := preprocess(cmd, GetConfig(), GetRootDir(), files, preprocessAll)
	if err != nil {
		return err
	}
	printPreprocess(GetConfig(), GetRootDir(), result)
	return nil
}

func preprocess(cmd *cobra.Command, cfg *config.Config, root string, files []string, all bool) (*usecase.PreprocessResult, error) {
	ch, err := chunker.NewTextChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MinChunkSize)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewPreprocessUseCase(
		fs.NewWalker(cfg.Catalog.Includes, cfg.Catalog.Excludes),
		normalizer.New(),
		ch,
		logger.Get(),
	)

	result, err := uc.Run(cmd.Context(), usecase.PreprocessOptions{
		RawDir:        cfg.RawDir(root),
		Files:         files,
		All:           all,
		DocumentsPath: cfg.DocumentsPath(root),
		ChunksPath:    cfg.ChunksPath(root),
	})
	if err != nil {
		return nil, fmt.Errorf("preprocess failed: %w", err)
	}
	return result, nil
}

func printPreprocess(cfg *config.Config, root string, result *usecase.PreprocessResult) {
	fmt.Printf("Preprocess complete:\n")
	for _, f := range result.Files {
		fmt.Printf("  Input:      %s\n", f)
	}
	fmt.Printf("  Records:    %d\n", result.Records)
	fmt.Printf("  Documents:  %d\n", result.Documents)
	fmt.Printf("  Skipped:    %d\n", result.Skipped)
	fmt.Printf("  Chunks:     %d\n", result.Chunks)

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nDocuments stored at: %s\n", cfg.DocumentsPath(root))
	fmt.Printf("Chunks stored at:    %s\n", cfg.ChunksPath(root))
}
