package preflight

import (
	"context"

	"scribe/internal/config"
	"scribe/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects the checks that need network access.
type Options struct {
	// CheckLLM issues a live completion against the extraction model.
	CheckLLM bool
}

// RunAll executes the preflight checks for the given config. Directory
// checks always run; the LLM probe runs only when requested and a key is set.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Blob directory", cfg.Paths.BlobDir),
	}

	// A missing intro directory only disables alignment.
	if intro := CheckDirectoryAccess("Intro samples", cfg.Paths.IntroDir); intro.Passed {
		results = append(results, intro)
	} else {
		intro.Passed = true
		intro.Detail += "; speaker names fall back to Speaker N labels"
		results = append(results, intro)
	}

	results = append(results, CheckDiarization(cfg))

	if cfg.LLM.APIKey == "" {
		results = append(results, Result{Name: "Extraction LLM", Detail: "API key missing (set llm.api_key or OPENROUTER_API_KEY)"})
	} else if opts.CheckLLM {
		results = append(results, CheckLLM(ctx, "Extraction LLM", llm.ConfigFrom(cfg)))
	} else {
		results = append(results, Result{Name: "Extraction LLM", Passed: true, Detail: "API key configured (not probed)"})
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
