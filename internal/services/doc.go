// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp meeting IDs, queue message IDs, stage names,
//     worker slots and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. IsTerminal separates
//     failures that redelivery cannot fix (configuration, format, missing
//     input) from transient ones.
//
// Subpackages wrap the external tools the pipeline shells out to (whisperx)
// and the HTTP model endpoint used for task extraction (llm).
package services
