// Package language normalizes the transcription language setting into the
// ISO 639-1 code WhisperX expects and renders display names for it.
//
// Input may be a 2-letter code, a 3-letter ISO 639-2 code, a BCP 47 tag such
// as "en-US", or an English word such as "english". An empty value means
// auto-detection and is kept empty.
package language
