// Package extraction turns a meeting transcript into draft tasks.
//
// Extractor prompts the LLM for a strict JSON payload, validates each task
// independently (keeping the valid ones when others fail), asks the model to
// repair the payload once when nothing survives, and finally snaps assignee
// names onto the speakers that actually appear in the transcript.
package extraction
