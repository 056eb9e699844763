// Package ingestion provides pipeline orchestration for knowledge documents.
//
// The Pipeline type manages the ingestion workflow:
//   - Classifying content and extracting text
//   - Persisting the document record
//   - Splitting text into overlapping token-bounded fragments
//   - Embedding each fragment under a shared concurrency gate
//   - Persisting fragments
//
// Fragments are processed concurrently on a worker pool. A failed fragment
// is logged and counted but does not fail the document.
package ingestion
