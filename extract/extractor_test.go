package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/core"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractor_DOCX(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`

	text, err := NewExtractor().Extract(context.Background(), buildDOCX(t, docXML), ContentTypeDOCX, "doc.docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond paragraph", text)
}

func TestExtractor_DOCXNotAZip(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("plain bytes"), ContentTypeDOCX, "doc.docx")
	assert.ErrorIs(t, err, core.ErrCorruptContent)
}

func TestExtractor_Textual(t *testing.T) {
	text, err := NewExtractor().Extract(context.Background(), []byte(`{"a":1}`), "application/json; charset=utf-8", "a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestExtractor_SniffsGenericContentType(t *testing.T) {
	text, err := NewExtractor().Extract(context.Background(), []byte("just some words\n"), "application/octet-stream", "notes")
	require.NoError(t, err)
	assert.Equal(t, "just some words\n", text)
}

func TestExtractor_Unsupported(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	_, err := NewExtractor().Extract(context.Background(), png, "image/png", "pic.png")
	assert.ErrorIs(t, err, core.ErrUnsupportedContentType)
}

func TestExtractor_InvalidPDF(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("not a pdf"), ContentTypePDF, "a.pdf")
	assert.Error(t, err)
}

func TestIsBinaryContentType(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        bool
	}{
		{"application/pdf", "", true},
		{"image/jpeg", "photo", true},
		{"", "sheet.XLSX", true},
		{"application/msword", "", true},
		{"text/plain", "notes.txt", false},
		{"text/markdown; charset=utf-8", "readme.md", false},
		{"", "notes", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBinaryContentType(tt.contentType, tt.filename), "%q %q", tt.contentType, tt.filename)
	}
}

func TestLooksLikeBase64(t *testing.T) {
	assert.True(t, LooksLikeBase64("aGVsbG8="))
	assert.True(t, LooksLikeBase64("aGVs\nbG8g\nd29y bGQ="))
	assert.False(t, LooksLikeBase64("Test123"))
	assert.False(t, LooksLikeBase64("hello world!"))
	assert.False(t, LooksLikeBase64(""))
}

func TestReplacementRatio(t *testing.T) {
	assert.Zero(t, replacementRatio([]byte("clean")))
	assert.InDelta(t, 0.5, replacementRatio([]byte{'a', 0xff}), 1e-9)
	assert.InDelta(t, 1.0/3.0, replacementRatio([]byte("a�b")), 1e-9)
	assert.Zero(t, replacementRatio(nil))
}
