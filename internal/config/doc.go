// Package config loads, normalizes, and validates scribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY, HF_TOKEN and INTRO_AUDIO_DIR. The Config type centralizes
// the queue, audio, transcription and extraction knobs so the daemon, worker
// and CLI discover them in one pass.
package config
