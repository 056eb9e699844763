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
	"mime"
	"path/filepath"
	"strings"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeText = "text/plain"
)

// binaryContentTypes lists MIME types whose payload is always base64-encoded binary.
var binaryContentTypes = map[string]bool{
	ContentTypePDF:                  true,
	ContentTypeDOCX:                 true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
	"application/epub+zip":       true,
	"application/rtf":            true,
	"application/zip":            true,
	"application/gzip":           true,
	"application/x-tar":          true,
	"application/x-7z-compressed": true,
	"application/octet-stream":   true,
}

// binaryPrefixes are MIME type families that are always binary.
var binaryPrefixes = []string{"image/", "audio/", "video/", "font/"}

// binaryExtensions covers files whose content type was not supplied.
var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".odt": true, ".ods": true, ".odp": true,
	".epub": true, ".rtf": true, ".zip": true, ".gz": true, ".tar": true,
	".7z": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".mp3": true, ".wav": true, ".mp4": true,
}

// normalizeContentType lower-cases a MIME type and strips its parameters.
func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		return strings.TrimSpace(contentType[:i])
	}
	return contentType
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsPDF reports whether content with this type or filename is a PDF.
func IsPDF(contentType, filename string) bool {
	return normalizeContentType(contentType) == ContentTypePDF || extension(filename) == ".pdf"
}

// IsBinaryContentType reports whether content with this type or filename
// carries base64-encoded binary data rather than text.
func IsBinaryContentType(contentType, filename string) bool {
	ct := normalizeContentType(contentType)
	if binaryContentTypes[ct] {
		return true
	}
	for _, prefix := range binaryPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return binaryExtensions[extension(filename)]
}

// isTextual reports whether a MIME type is plain text of some kind.
func isTextual(contentType string) bool {
	ct := normalizeContentType(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	switch ct {
	case "application/json", "application/xml", "application/x-yaml", "application/yaml",
		"application/javascript", "application/x-sh", "application/toml", "application/x-ndjson":
		return true
	}
	return strings.HasSuffix(ct, "+json") || strings.HasSuffix(ct, "+xml")
}
