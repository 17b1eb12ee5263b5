package normalizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"productrag/internal/domain"
)

func sampleRecord() domain.CatalogRecord {
	return domain.CatalogRecord{
		ID:          "VL001",
		Name:        "Vali 20 inch ABS",
		Category:    "Vali",
		Subcategory: "Vali nhựa",
		Material:    "ABS",
		Size:        "20 inch",
		Dimensions:  "35 x 23 x 55 cm",
		Weight:      "2.8 kg",
		Capacity:    "38 lít",
		Features:    []string{"Khóa TSA", "Bánh xe 360"},
		SourceURL:   "https://example.com/vali-20",
	}
}

func TestNormalize_ContentOrder(t *testing.T) {
	docs, err := New().Normalize(sampleRecord())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	want := strings.Join([]string{
		"Tên sản phẩm: Vali 20 inch ABS",
		"Danh mục: Vali - Vali nhựa",
		"Thông số kỹ thuật:",
		"- Chất liệu: ABS",
		"- Kích thước: 20 inch",
		"- Chi tiết: 35 x 23 x 55 cm",
		"- Trọng lượng: 2.8 kg",
		"- Dung tích: 38 lít",
		"Tính năng: Khóa TSA, Bánh xe 360",
	}, "\n")
	assert.Equal(t, want, docs[0].Content)
	assert.Equal(t, "VL001", docs[0].ID)

	meta := docs[0].Metadata
	require.NotNil(t, meta.SizeNumeric)
	require.NotNil(t, meta.WeightNumeric)
	assert.Equal(t, 20.0, *meta.SizeNumeric)
	assert.Equal(t, 2.8, *meta.WeightNumeric)
	assert.Equal(t, "https://example.com/vali-20", meta.URL)
}

func TestNormalize_AbsentFieldsOmitted(t *testing.T) {
	docs, err := New().Normalize(domain.CatalogRecord{ID: "B1", Name: "Balo Laptop X", Material: "Polyester"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "Tên sản phẩm: Balo Laptop X\nThông số kỹ thuật:\n- Chất liệu: Polyester", docs[0].Content)
	assert.NotContains(t, docs[0].Content, "N/A")
	assert.Nil(t, docs[0].Metadata.SizeNumeric)
	assert.NotNil(t, docs[0].Metadata.Features)
	assert.Empty(t, docs[0].Metadata.Features)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New()
	first, err := n.Normalize(sampleRecord())
	require.NoError(t, err)
	second, err := n.Normalize(sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Content, second[0].Content)
}

func TestNormalize_Variants(t *testing.T) {
	rec := sampleRecord()
	rec.Variants = []domain.Variant{
		{Size: "20 inch", Weight: "2.8 kg"},
		{Size: "24 inch", Weight: "3.4 kg", Capacity: "60 lít"},
	}

	docs, err := New().Normalize(rec)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "VL001_V1", docs[0].ID)
	assert.Equal(t, "VL001_V2", docs[1].ID)
	assert.Equal(t, "Vali 20 inch ABS (24 inch)", docs[1].Metadata.Name)
	assert.Contains(t, docs[1].Content, "- Dung tích: 60 lít")
	assert.Contains(t, docs[1].Content, "- Chi tiết: 35 x 23 x 55 cm")
	assert.Equal(t, 3.4, *docs[1].Metadata.WeightNumeric)
}

func TestNormalize_SingleVariantKeepsID(t *testing.T) {
	rec := sampleRecord()
	rec.Variants = []domain.Variant{{Size: "28 inch"}}

	docs, err := New().Normalize(rec)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "VL001", docs[0].ID)
	assert.Equal(t, "Vali 20 inch ABS (28 inch)", docs[0].Metadata.Name)
}

func TestNormalize_SkipsMissingIdentity(t *testing.T) {
	n := New()

	_, err := n.Normalize(domain.CatalogRecord{Name: "Không mã"})
	assert.True(t, errors.Is(err, domain.ErrSkippedRecord))

	_, err = n.Normalize(domain.CatalogRecord{ID: "X1", Name: "   "})
	assert.True(t, errors.Is(err, domain.ErrSkippedRecord))
}

func TestNormalize_CleansWhitespace(t *testing.T) {
	docs, err := New().Normalize(domain.CatalogRecord{ID: " T1 ", Name: "Túi   Du\tLịch  Y", Features: []string{" ", "Chống nước "}})
	require.NoError(t, err)

	assert.Equal(t, "T1", docs[0].ID)
	assert.Equal(t, "Túi Du Lịch Y", docs[0].Metadata.Name)
	assert.Equal(t, []string{"Chống nước"}, docs[0].Metadata.Features)
}

func TestNormalizeAll_SkipsAndDedups(t *testing.T) {
	records := []domain.CatalogRecord{
		sampleRecord(),
		{Name: "no id"},
		sampleRecord(),
		{ID: "B1", Name: "Balo Laptop X"},
	}

	result := New().NormalizeAll(records)
	assert.Equal(t, 4, result.Records)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "VL001", result.Documents[0].ID)
	assert.Equal(t, "B1", result.Documents[1].ID)
	assert.Len(t, result.Errors, 2)
}

func TestSplitFeatures(t *testing.T) {
	assert.Equal(t, []string{"Khóa TSA", "Bánh xe 360"}, SplitFeatures("Khóa TSA | Bánh xe 360|"))
	assert.Nil(t, SplitFeatures("  "))
}

func TestLoadJSON(t *testing.T) {
	data := `[
	  {
	    "product_info": {"id": 1024, "name": "Vali nhôm", "category": "Vali", "subcategory": "Vali khung nhôm"},
	    "specifications": {"material": "Nhôm", "features": ["Khóa số"]},
	    "variants": [{"size": "20 inch", "weight": "3 kg", "price": 1500000}, {"size": "24 inch"}],
	    "images": {"main": ["a.jpg"]},
	    "metadata": {"source_url": "https://example.com/p/1024"}
	  },
	  {
	    "product_info": {"id": "B7", "name": "Balo"},
	    "specifications": {"size": "15.6 inch", "weight": "0.9 kg"}
	  }
	]`

	records, err := LoadJSON(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1024", records[0].ID)
	assert.Equal(t, "Nhôm", records[0].Material)
	assert.Equal(t, []string{"Khóa số"}, records[0].Features)
	require.Len(t, records[0].Variants, 2)
	assert.Equal(t, "1500000", records[0].Variants[0].Price)
	assert.Equal(t, "https://example.com/p/1024", records[0].SourceURL)

	assert.Equal(t, "B7", records[1].ID)
	assert.Equal(t, "15.6 inch", records[1].Size)
	assert.Empty(t, records[1].Variants)
}

func TestLoadJSON_Invalid(t *testing.T) {
	_, err := LoadJSON(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	data := "ID,Name,Category,Subcategory,Material,Size,Dimensions,Weight,Capacity,Features,Source URL\n" +
		"VL001_V1,Vali 20 inch ABS,Vali,Vali nhựa,ABS,20 inch,,2.8 kg,38 lít,Khóa TSA|Bánh xe 360,https://example.com/vali\n" +
		"B1,\"Balo, Laptop\",Balo,,,,,,,,\n"

	records, err := LoadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "VL001_V1", records[0].ID)
	assert.Equal(t, []string{"Khóa TSA", "Bánh xe 360"}, records[0].Features)
	assert.Equal(t, "https://example.com/vali", records[0].SourceURL)
	assert.Equal(t, "Balo, Laptop", records[1].Name)
	assert.Nil(t, records[1].Features)
}

func TestLoadCSV_ByteOrderMark(t *testing.T) {
	data := "\ufeffID,Name,Category\nVL001,Vali 20 inch ABS,Vali\n"

	records, err := LoadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "VL001", records[0].ID)
	assert.Equal(t, "Vali 20 inch ABS", records[0].Name)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"product_info":{"id":"A","name":"Vali"}}]`), 0644))
	records, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0644))
	_, err = LoadFile(txtPath)
	assert.Error(t, err)
}
