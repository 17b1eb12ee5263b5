// Package prompt loads the externally editable system prompt and context
// templates, falling back to built-in defaults.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"productrag/internal/logger"
)

//go:embed templates/*.txt
var defaultFiles embed.FS

// Placeholders understood by RenderContext.
const (
	PlaceholderSystemPrompt = "{system_prompt}"
	PlaceholderProducts     = "{retrieved_products}"
	PlaceholderQuestion     = "{user_question}"
)

// SectionProductRecommendation is the template section used for answers.
const SectionProductRecommendation = "PRODUCT_RECOMMENDATION"

const (
	defaultSystemFile    = "templates/system_prompt.txt"
	defaultTemplatesFile = "templates/query_templates.txt"
)

// DefaultSystemPrompt returns the built-in system prompt.
func DefaultSystemPrompt() string {
	data, _ := defaultFiles.ReadFile(defaultSystemFile)
	return strings.TrimSpace(string(data))
}

// DefaultContextTemplate returns the built-in product recommendation template.
func DefaultContextTemplate() string {
	data, _ := defaultFiles.ReadFile(defaultTemplatesFile)
	tmpl, _ := ExtractSection(string(data), SectionProductRecommendation)
	return tmpl
}

// Store holds the current system prompt and context template. Loading
// never fails; missing or empty files fall back to the defaults.
type Store struct {
	dir           string
	systemFile    string
	templatesFile string
	logger        *zap.Logger

	mu       sync.RWMutex
	system   string
	template string
}

func NewStore(dir, systemFile, templatesFile string, log *zap.Logger) *Store {
	s := &Store{
		dir:           dir,
		systemFile:    systemFile,
		templatesFile: templatesFile,
		logger:        logger.OrNop(log),
	}
	s.Reload()
	return s
}

// Reload re-reads both files.
func (s *Store) Reload() {
	system := s.loadSystemPrompt()
	template := s.loadTemplate()

	s.mu.Lock()
	s.system = system
	s.template = template
	s.mu.Unlock()
}

func (s *Store) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system
}

func (s *Store) ContextTemplate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

func (s *Store) Dir() string {
	return s.dir
}

// Paths returns the system prompt and template file paths.
func (s *Store) Paths() (string, string) {
	return filepath.Join(s.dir, s.systemFile), filepath.Join(s.dir, s.templatesFile)
}

func (s *Store) loadSystemPrompt() string {
	path, _ := s.Paths()
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("system prompt file not found, using default", zap.String("path", path))
		return DefaultSystemPrompt()
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		s.logger.Warn("system prompt file is empty, using default", zap.String("path", path))
		return DefaultSystemPrompt()
	}
	return prompt
}

func (s *Store) loadTemplate() string {
	_, path := s.Paths()
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("templates file not found, using default", zap.String("path", path))
		return DefaultContextTemplate()
	}
	tmpl, ok := ExtractSection(string(data), SectionProductRecommendation)
	if !ok || tmpl == "" {
		s.logger.Warn("template section not found, using default",
			zap.String("path", path), zap.String("section", SectionProductRecommendation))
		return DefaultContextTemplate()
	}
	return tmpl
}

// WriteDefaults materializes the default prompt files that do not exist
// yet and returns the paths written.
func (s *Store) WriteDefaults() ([]string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create prompts directory: %w", err)
	}

	systemPath, templatesPath := s.Paths()
	var written []string
	for _, f := range []struct{ src, dst string }{
		{defaultSystemFile, systemPath},
		{defaultTemplatesFile, templatesPath},
	} {
		if _, err := os.Stat(f.dst); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return written, err
		}

		data, err := defaultFiles.ReadFile(f.src)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(f.dst, data, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.dst, err)
		}
		written = append(written, f.dst)
	}

	s.Reload()
	return written, nil
}

// ExtractSection returns the text after "[name]" up to the next "[" or the
// end of content, trimmed.
func ExtractSection(content, name string) (string, bool) {
	marker := "[" + name + "]"
	start := strings.Index(content, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)

	rest := content[start:]
	if end := strings.Index(rest, "["); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

// RenderContext fills the three placeholders of tmpl.
func RenderContext(tmpl, systemPrompt, products, question string) string {
	return strings.NewReplacer(
		PlaceholderSystemPrompt, systemPrompt,
		PlaceholderProducts, products,
		PlaceholderQuestion, question,
	).Replace(tmpl)
}
