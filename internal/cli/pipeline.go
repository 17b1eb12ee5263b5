package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pipelineAll bool

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run preprocess, embed and a resetting index in one go",
	Long: `Run the full offline pipeline: normalize and chunk the latest catalog
file (or every file with --all), embed the chunks, then rebuild the
collection from scratch.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().BoolVar(&pipelineAll, "all", false, "ingest every catalog file instead of the latest")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	fmt.Println("==> preprocess")
	pre, err := preprocess(cmd, cfg, root, nil, pipelineAll)
	if err != nil {
		return err
	}
	printPreprocess(cfg, root, pre)

	fmt.Println("\n==> embed")
	artifact, err := embed(cmd, cfg, root)
	if err != nil {
		return err
	}
	fmt.Printf("Embedded %d chunks with %s (%d dimensions)\n",
		artifact.Metadata.NumDocuments, artifact.Metadata.ModelName, artifact.Metadata.EmbeddingDim)

	fmt.Println("\n==> index")
	result, err := index(cmd, cfg, root, true)
	if err != nil {
		return err
	}
	fmt.Printf("Collection %s now holds %d products\n", result.Info.Name, result.Info.Count)
	return nil
}
