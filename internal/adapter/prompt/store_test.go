package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantDefaultTemplate = "{system_prompt}\n\nTHÔNG TIN SẢN PHẨM LIÊN QUAN:\n{retrieved_products}\n\nCÂU HỎI: {user_question}\n\nHãy phân tích thông tin trên và đưa ra lời khuyên phù hợp nhất cho khách hàng."

func TestDefaults(t *testing.T) {
	assert.Equal(t, wantDefaultTemplate, DefaultContextTemplate())
	assert.Contains(t, DefaultSystemPrompt(), "Công ty Cổ phần Hùng Phát")
	assert.Contains(t, DefaultSystemPrompt(), "1-2 sản phẩm tốt nhất")
}

func TestStoreMissingFilesUseDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"), "system_prompt.txt", "query_templates.txt", nil)

	assert.Equal(t, DefaultSystemPrompt(), s.SystemPrompt())
	assert.Equal(t, DefaultContextTemplate(), s.ContextTemplate())
}

func TestStoreEmptySystemPrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system_prompt.txt"), []byte("  \n"), 0644))

	s := NewStore(dir, "system_prompt.txt", "query_templates.txt", nil)
	assert.Equal(t, DefaultSystemPrompt(), s.SystemPrompt())
}

func TestStoreLoadsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system_prompt.txt"), []byte("  Bạn là trợ lý.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "query_templates.txt"), []byte(
		"# header\n[GREETING]\nXin chào\n[PRODUCT_RECOMMENDATION]\n\n{system_prompt}|{retrieved_products}|{user_question}\n\n[OTHER]\nx\n"), 0644))

	s := NewStore(dir, "system_prompt.txt", "query_templates.txt", nil)
	assert.Equal(t, "Bạn là trợ lý.", s.SystemPrompt())
	assert.Equal(t, "{system_prompt}|{retrieved_products}|{user_question}", s.ContextTemplate())
}

func TestStoreMissingSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "query_templates.txt"), []byte("[GREETING]\nXin chào\n"), 0644))

	s := NewStore(dir, "system_prompt.txt", "query_templates.txt", nil)
	assert.Equal(t, DefaultContextTemplate(), s.ContextTemplate())
}

func TestExtractSection(t *testing.T) {
	got, ok := ExtractSection("[A]\n one \n[B]\ntwo", "A")
	assert.True(t, ok)
	assert.Equal(t, "one", got)

	got, ok = ExtractSection("[A]\n one \n[B]\ntwo\n", "B")
	assert.True(t, ok)
	assert.Equal(t, "two", got)

	_, ok = ExtractSection("no sections", "A")
	assert.False(t, ok)
}

func TestRenderContext(t *testing.T) {
	out := RenderContext(DefaultContextTemplate(), "SYS", "Sản phẩm 1:", "Vali nào tốt?")
	assert.Equal(t, "SYS\n\nTHÔNG TIN SẢN PHẨM LIÊN QUAN:\nSản phẩm 1:\n\nCÂU HỎI: Vali nào tốt?\n\nHãy phân tích thông tin trên và đưa ra lời khuyên phù hợp nhất cho khách hàng.", out)

	assert.Equal(t, "{user_question} x", RenderContext("{retrieved_products} x", "", "{user_question}", "q"))
}

func TestWriteDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config", "prompts")
	s := NewStore(dir, "system_prompt.txt", "query_templates.txt", nil)

	written, err := s.WriteDefaults()
	require.NoError(t, err)
	assert.Len(t, written, 2)

	written, err = s.WriteDefaults()
	require.NoError(t, err)
	assert.Empty(t, written)

	assert.Equal(t, DefaultSystemPrompt(), s.SystemPrompt())
	assert.Equal(t, wantDefaultTemplate, s.ContextTemplate())
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system_prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	s := NewStore(dir, "system_prompt.txt", "query_templates.txt", nil)
	require.Equal(t, "v1", s.SystemPrompt())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, s, 10*time.Millisecond) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	assert.Eventually(t, func() bool { return s.SystemPrompt() == "v2" }, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
