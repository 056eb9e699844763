// Package reembed re-embeds every stored knowledge fragment with the current
// embedder.
//
// Run it after switching embedding model or dimension: similarity search
// skips vectors whose dimension differs from the query, so fragments
// embedded by the old model stay invisible until they are re-embedded.
// Fragments are processed in batches with retry and progress reporting, and
// every new vector is normalised before it is stored.
package reembed
