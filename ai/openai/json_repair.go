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

package openai

import "strings"

// repairJSON fixes the usual defects in a model's {"context": "..."} reply:
// prose around the object, a key with no quotes or no opening quote, raw
// newlines or tabs inside a string and a comma before the closing brace.
// Well-formed JSON comes back unchanged.
func repairJSON(s string) string {
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch ch {
			case '\\':
				b.WriteByte(ch)
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				inString = false
				b.WriteByte(ch)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			b.WriteByte(ch)
		case ',':
			if next := skipSpace(s, i+1); next < len(s) && s[next] == '}' {
				continue
			}
			b.WriteByte(ch)
			i = writeKey(&b, s, i+1) - 1
		case '{':
			b.WriteByte(ch)
			i = writeKey(&b, s, i+1) - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// writeKey copies the whitespace at s[i:] and quotes a bare object key that
// follows it. It returns the index of the first byte it did not consume.
func writeKey(b *strings.Builder, s string, i int) int {
	j := skipSpace(s, i)
	b.WriteString(s[i:j])
	if j == len(s) || !isLetter(rune(s[j])) {
		return j
	}
	k := j
	for k < len(s) && isKeyChar(s[k]) {
		k++
	}
	key := s[j:k]

	// key": is a key that lost its opening quote
	if k < len(s) && s[k] == '"' {
		if colon := skipSpace(s, k+1); colon < len(s) && s[colon] == ':' {
			b.WriteString(`"` + key + `"`)
			return k + 1
		}
		return j
	}
	if colon := skipSpace(s, k); colon < len(s) && s[colon] == ':' {
		b.WriteString(`"` + key + `"`)
		return k
	}
	return j
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}

func isKeyChar(c byte) bool {
	return isLetter(rune(c)) || c == '_' || (c >= '0' && c <= '9')
}
