// Package config loads the knowledge service configuration.
//
// Configuration is layered: built-in defaults, then a TOML file, then
// environment variable overrides. The result is validated as a whole and
// mapped onto the option sets of the individual components.
//
// A minimal file:
//
//	[agent]
//	name = "eliza"
//
//	[embedding]
//	provider = "openai"
//	api_key = "sk-..."
//
//	[ingestion]
//	target_tokens = 1000
//	overlap_tokens = 100
package config
