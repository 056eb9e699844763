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

// Package loader ingests knowledge documents from a directory.
//
// LoadDirectory walks a directory once, typically at start-up, and hands
// every visible file to an Ingester. Each file is sniffed with mimetype:
// text is passed through as-is and everything else is base64-encoded so the
// ingestion classifier can extract its text. Document ids derive from the
// agent and the file's path relative to the root, so reloading an unchanged
// tree is a no-op.
//
// Watcher keeps a directory in sync afterwards: files created after
// start-up are added and modified files are re-ingested in place.
package loader
