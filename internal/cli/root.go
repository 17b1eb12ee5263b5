package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"productrag/config"
	"productrag/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "productrag",
	Short: "Product advisory RAG - build a product index and answer customer questions",
	Long: `productrag turns a crawled product catalog into a searchable vector index
and answers customer questions over it with a local language model.

The build pipeline runs in three steps, each writing an artifact the next reads:
  preprocess   catalog files -> documents.json, chunks.json
  embed        chunks.json   -> embeddings.json
  index        embeddings.json -> vector collection

Example usage:
  productrag pipeline                      # Run all three build steps
  productrag query -q "vali 20 inch"       # Vector search only
  productrag ask -q "vali nào nhẹ nhất?"   # Answer with the language model
  productrag serve                         # HTTP query API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}

		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./productrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
