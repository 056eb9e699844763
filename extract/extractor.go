// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/poiesic/knowledge/core"
)

// TextExtractor pulls plain text out of binary document formats.
// Implementations must be safe for concurrent use.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType, filename string) (string, error)
}

// Extractor is the default TextExtractor.
type Extractor struct {
	logger *slog.Logger
}

var _ TextExtractor = (*Extractor)(nil)

// NewExtractor creates an Extractor handling PDF, DOCX and textual formats.
func NewExtractor() *Extractor {
	return &Extractor{
		logger: slog.Default().With("component", "text-extractor"),
	}
}

// Extract returns the text content of data. When the content type is missing
// or generic the type is sniffed from the bytes.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(mimetype.Detect(data).String())
		e.logger.Debug("sniffed content type", "filename", filename, "contentType", ct)
	}

	switch {
	case ct == ContentTypePDF || extension(filename) == ".pdf":
		return e.extractPDF(ctx, data, filename)
	case ct == ContentTypeDOCX || extension(filename) == ".docx":
		return extractDOCX(data, filename)
	case isTextual(ct):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", core.ErrCorruptContent, filename)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", core.ErrUnsupportedContentType, filename, ct)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, filename string) (string, error) {
	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("extracting text from pdf %s: %w", filename, err)
	}

	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(page.PageContent)
	}
	e.logger.Debug("extracted pdf text", "filename", filename, "pages", len(pages), "length", sb.Len())
	return sb.String(), nil
}

// documentXML is the subset of word/document.xml needed for text.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func extractDOCX(data []byte, filename string) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a docx archive: %w", core.ErrCorruptContent, filename, err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("opening %s in %s: %w", file.Name, filename, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading %s in %s: %w", file.Name, filename, err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("%w: %s: %w", core.ErrCorruptContent, filename, err)
		}

		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, text := range run.Text {
					sb.WriteString(text.Content)
				}
			}
		}
		return strings.TrimSpace(sb.String()), nil
	}
	return "", nil
}
