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


// Package extract decides how incoming document content is interpreted and
// turns it into plain text.
//
// Content arrives as a string alongside a content type and filename. The
// Classifier sorts it into one of three classes:
//
//   - PDF: the string is base64, the text comes from the PDF, and the
//     original base64 is kept as the stored payload.
//   - Other binary (Word, spreadsheets, images, archives...): the string is
//     base64, and the extracted text is both the fragment source and the
//     stored payload.
//   - Text: the string is used as-is, unless it looks like base64, in which
//     case it is decoded and checked for corruption.
//
// Text extraction from binary formats is delegated to a TextExtractor. The
// default Extractor handles PDF (via langchaingo's PDF loader), DOCX, and
// textual MIME types.
package extract
