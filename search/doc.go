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

// Package search retrieves knowledge fragments by semantic similarity.
//
// A Searcher embeds the query text, normalises the vector and asks the
// fragment store for the closest fragments, optionally restricted to a
// room, world or entity. Each result also reports which query terms appear
// verbatim in the fragment, after stop-word filtering.
package search
