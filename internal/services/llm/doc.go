// Package llm is the OpenRouter chat client used for task extraction.
//
// CompleteJSON sends a system and user prompt with a JSON response format and
// returns the model's raw JSON text. DecodeJSON tolerates the usual model
// quirks (code fences, prose around the object) when unmarshalling it.
//
// Requests are retried on HTTP 408/429/5xx, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, five attempts by
// default); Retry-After is honoured. Authentication failures are reported as
// configuration errors so the job fails fast instead of being redelivered.
package llm
