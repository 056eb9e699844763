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
	"encoding/base64"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)

// stripWhitespace removes every whitespace rune from s.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// LooksLikeBase64 reports whether s, ignoring whitespace, is shaped like
// padded standard base64: only base64 alphabet characters, optional trailing
// '=' padding, and a length that is a multiple of four.
func LooksLikeBase64(s string) bool {
	compact := stripWhitespace(s)
	if len(compact) == 0 || len(compact)%4 != 0 {
		return false
	}
	return base64Pattern.MatchString(compact)
}

// decodeBase64 decodes standard base64, tolerating whitespace and missing padding.
func decodeBase64(s string) ([]byte, error) {
	compact := stripWhitespace(s)
	data, err := base64.StdEncoding.DecodeString(compact)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
}

// replacementRatio returns the share of runes in data that are invalid UTF-8
// or the Unicode replacement character.
func replacementRatio(data []byte) float64 {
	var total, bad int
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError {
			bad++
		}
		total++
		data = data[size:]
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}
