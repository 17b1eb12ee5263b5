package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"productrag/config"
	"productrag/internal/adapter/embedding"
	"productrag/internal/adapter/store"
	"productrag/internal/domain"
	"productrag/internal/port"
)

func main() {
	rootDir := flag.String("dir", ".", "Project root directory")
	cfgPath := flag.String("config", "", "Config file (default is <dir>/productrag.yaml)")
	query := flag.String("q", "", "Question to test")
	questions := flag.String("questions", "", "File with one question per line")
	topK := flag.Int("k", 5, "Number of results")
	flag.Parse()

	if *query == "" && *questions == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"vali 20 inch\"")
		fmt.Println("       go run ./cmd/benchmark -dir . -questions questions.txt")
		fmt.Println("\nReports per question:")
		fmt.Println("  1. Retrieval latency (embedding + search)")
		fmt.Println("  2. Similarity of the top-k products")
		fmt.Println("  3. A coarse relevance rating")
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
	} else {
		cfg, err = config.LoadFromDir(*rootDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	qs, err := loadQuestions(*query, *questions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading questions: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(cfg.IndexDBPath(*rootDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	encoder, collection, err := setupSearch(ctx, st, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Vector search not available: %v\n", err)
		os.Exit(1)
	}

	info := collection.Info(ctx)
	fmt.Println("PRODUCT SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Collection: %s (%d products)\n", info.Name, info.Count)
	fmt.Printf("Model: %s (%s)\n", encoder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n\n", encoder.Dimension())

	var latencies []time.Duration
	var top1Total, avgTotal float64
	for _, q := range qs {
		start := time.Now()
		vector, err := encoder.EncodeOne(ctx, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embedding error for %q: %v\n", q, err)
			continue
		}
		result, err := collection.Search(ctx, q, vector, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error for %q: %v\n", q, err)
			continue
		}
		elapsed := time.Since(start)
		latencies = append(latencies, elapsed)

		fmt.Printf("Question: \"%s\"  (%s)\n", q, elapsed.Round(time.Millisecond))
		fmt.Println(strings.Repeat("-", 70))
		if result.Empty() {
			fmt.Println("   no results")
			fmt.Println()
			continue
		}

		total := 0.0
		for i, hit := range result.Hits {
			similarity := hit.Similarity()
			total += similarity
			fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating(similarity), similarity, displayName(hit))
			fmt.Printf("   %s\n", preview(hit.Text))
		}
		fmt.Println()

		top1Total += result.Hits[0].Similarity()
		avgTotal += total / float64(len(result.Hits))
	}

	if len(latencies) == 0 {
		fmt.Println("No question completed.")
		os.Exit(1)
	}

	n := float64(len(latencies))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS (%d questions):\n", len(latencies))
	fmt.Printf("  Average similarity: %.3f\n", avgTotal/n)
	fmt.Printf("  Top-1 similarity:   %.3f\n", top1Total/n)
	fmt.Printf("  Latency p50:        %s\n", percentile(latencies, 0.50).Round(time.Millisecond))
	fmt.Printf("  Latency p95:        %s\n", percentile(latencies, 0.95).Round(time.Millisecond))

	if avgTotal/n > 0.5 {
		fmt.Println("  Status: GOOD - retrieval working well")
	} else if avgTotal/n > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - check the embedding model or rebuild the index")
	}
}

func setupSearch(ctx context.Context, st *store.BoltStore, cfg *config.Config) (*embedding.Client, *store.Collection, error) {
	var backend port.EmbeddingBackend
	var err error

	switch cfg.Embedding.Provider {
	case "ollama":
		backend = embedding.NewOllamaBackend(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "openai":
		backend, err = embedding.NewOpenAIBackend(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "hash":
		backend = embedding.NewHashBackend(cfg.Embedding.Dimension)
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("embedder init failed: %w", err)
	}

	encoder := embedding.NewClient(backend, embedding.ClientConfig{
		BatchSize: cfg.Embedding.BatchSize,
		MaxLength: cfg.Embedding.MaxLength,
		Dimension: cfg.Embedding.Dimension,
		Normalize: cfg.Embedding.Normalize,
	}, nil, nil)

	collection := store.NewCollection(st, cfg.VectorStore.Collection, store.CollectionOptions{
		Model: encoder.ModelName(),
	})
	if err := collection.CreateCollection(ctx, false); err != nil {
		return nil, nil, fmt.Errorf("collection unavailable: %w", err)
	}
	if collection.Info(ctx).Count == 0 {
		return nil, nil, fmt.Errorf("collection is empty - run 'productrag pipeline' first")
	}

	if err := encoder.Load(ctx); err != nil {
		return nil, nil, err
	}
	if err := collection.CheckParity(encoder.ModelName(), encoder.Dimension()); err != nil {
		return nil, nil, err
	}
	return encoder, collection, nil
}

func loadQuestions(query, path string) ([]string, error) {
	if path == "" {
		return []string{query}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var qs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		qs = append(qs, line)
	}
	if query != "" {
		qs = append(qs, query)
	}
	return qs, scanner.Err()
}

func rating(similarity float64) string {
	switch {
	case similarity > 0.7:
		return "HIGH"
	case similarity > 0.5:
		return "GOOD"
	case similarity > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

func displayName(hit domain.SearchHit) string {
	if name := hit.Name(); name != "" {
		return name
	}
	return hit.ID
}

func preview(text string) string {
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(runes) > 150 {
		return string(runes[:150]) + "..."
	}
	return string(runes)
}

func percentile(ds []time.Duration, p float64) time.Duration {
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
