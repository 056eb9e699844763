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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/knowledge/core"
)

// DefaultCorruptThreshold is the share of replacement characters above which
// base64-decoded text is rejected as corrupt.
const DefaultCorruptThreshold = 0.10

// ErrInvalidThreshold is returned for a corruption threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("corrupt threshold must be between 0 and 1")

// Class is the interpretation chosen for a piece of content.
type Class int

const (
	ClassText Class = iota
	ClassPDF
	ClassBinary
)

func (c Class) String() string {
	switch c {
	case ClassPDF:
		return "pdf"
	case ClassBinary:
		return "binary"
	default:
		return "text"
	}
}

// Result is the outcome of classifying a piece of content.
type Result struct {
	Class Class
	// Text is the extracted text that fragments are cut from.
	Text string
	// Stored is the payload persisted on the document record.
	Stored string
	// Size is the decoded byte size for binary content, else the text length.
	Size int64
	// DecodedBase64 is set when text content was recognised as base64.
	DecodedBase64 bool
}

// Classifier interprets raw document content.
type Classifier struct {
	extractor        TextExtractor
	corruptThreshold float64
	detectBase64     bool
	logger           *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithExtractor sets the TextExtractor used for PDF and binary content.
func WithExtractor(extractor TextExtractor) Option {
	return func(c *Classifier) error {
		if extractor != nil {
			c.extractor = extractor
		}
		return nil
	}
}

// WithCorruptThreshold sets the replacement-character ratio above which
// base64-looking text is rejected with core.ErrCorruptContent.
func WithCorruptThreshold(threshold float64) Option {
	return func(c *Classifier) error {
		if threshold < 0 || threshold > 1 {
			return ErrInvalidThreshold
		}
		c.corruptThreshold = threshold
		return nil
	}
}

// WithBase64Detection enables or disables decoding of base64-looking text.
// When disabled all text-class content is taken verbatim.
func WithBase64Detection(enabled bool) Option {
	return func(c *Classifier) error {
		c.detectBase64 = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClassifier creates a Classifier using the default Extractor unless one is supplied.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		corruptThreshold: DefaultCorruptThreshold,
		detectBase64:     true,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.extractor == nil {
		c.extractor = NewExtractor()
	}
	c.logger = c.logger.With("component", "classifier")
	return c, nil
}

// Classify decides how content is interpreted and extracts its text.
// It returns core.ErrInvalidEncoding, core.ErrCorruptContent or
// core.ErrEmptyContent (possibly wrapped) when the content is unusable.
func (c *Classifier) Classify(ctx context.Context, content, contentType, filename string) (*Result, error) {
	var result *Result
	var err error

	switch {
	case IsPDF(contentType, filename):
		result, err = c.classifyBinary(ctx, ClassPDF, content, contentType, filename)
	case IsBinaryContentType(contentType, filename):
		result, err = c.classifyBinary(ctx, ClassBinary, content, contentType, filename)
	default:
		result, err = c.classifyText(content, filename)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		c.logger.Warn("no text extracted", "filename", filename, "contentType", contentType, "class", result.Class)
		return nil, fmt.Errorf("%w: %s (%s)", core.ErrEmptyContent, filename, contentType)
	}
	return result, nil
}

func (c *Classifier) classifyBinary(ctx context.Context, class Class, content, contentType, filename string) (*Result, error) {
	data, err := decodeBase64(content)
	if err != nil {
		c.logger.Error("failed to decode base64", "filename", filename, "class", class, "err", err)
		return nil, fmt.Errorf("%w: %s file %s: %w", core.ErrInvalidEncoding, class, filename, err)
	}

	text, err := c.extractor.Extract(ctx, data, contentType, filename)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Class: class,
		Text:  text,
		Size:  int64(len(data)),
	}
	if class == ClassPDF {
		// keep the source for re-display
		result.Stored = content
	} else {
		result.Stored = text
	}
	return result, nil
}

func (c *Classifier) classifyText(content, filename string) (*Result, error) {
	if c.detectBase64 && LooksLikeBase64(content) {
		data, err := decodeBase64(content)
		if err == nil {
			ratio := replacementRatio(data)
			if ratio > 0 && ratio > c.corruptThreshold {
				c.logger.Error("decoded content has too many invalid characters",
					"filename", filename, "ratio", ratio, "threshold", c.corruptThreshold)
				return nil, fmt.Errorf("%w: %s decoded with %.0f%% invalid characters",
					core.ErrCorruptContent, filename, ratio*100)
			}
			text := strings.ToValidUTF8(string(data), "�")
			c.logger.Debug("decoded base64 text content", "filename", filename)
			return &Result{
				Class:         ClassText,
				Text:          text,
				Stored:        text,
				Size:          int64(len(text)),
				DecodedBase64: true,
			}, nil
		}
		c.logger.Debug("base64-shaped content did not decode, treating as plain text", "filename", filename)
	}

	return &Result{
		Class:  ClassText,
		Text:   content,
		Stored: content,
		Size:   int64(len(content)),
	}, nil
}
