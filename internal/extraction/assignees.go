package extraction

import (
	"regexp"
	"strings"

	"scribe/internal/textutil"
)

// AssigneeMatchThreshold is the minimum match ratio for a fuzzy assignee.
const AssigneeMatchThreshold = 0.6

var speakerLinePattern = regexp.MustCompile(`(?m)^([A-Z][^:\n]{1,50}):\s`)

// SpeakersFromTranscript lists speaker labels in order of first appearance,
// de-duplicated case-insensitively.
func SpeakersFromTranscript(transcript string) []string {
	seen := make(map[string]struct{})
	var speakers []string
	for _, match := range speakerLinePattern.FindAllStringSubmatch(transcript, -1) {
		name := strings.TrimSpace(match[1])
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		speakers = append(speakers, name)
	}
	return speakers
}

// ExpandWithKnownNames appends the full known name for every single-token
// speaker that resolves to exactly one known voice ("Adrian" to
// "Adrian Nowak"). The original labels are kept first.
func ExpandWithKnownNames(speakers, known []string) []string {
	if len(known) == 0 {
		return speakers
	}
	seen := make(map[string]struct{}, len(speakers))
	out := make([]string, 0, len(speakers))
	add := func(name string) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	for _, name := range speakers {
		add(name)
	}
	for _, name := range speakers {
		tokens := strings.Fields(name)
		if len(tokens) != 1 {
			continue
		}
		token := strings.ToLower(tokens[0])
		var candidates []string
		for _, full := range known {
			lower := strings.ToLower(full)
			if lower == token || strings.HasPrefix(lower, token+" ") || strings.HasSuffix(lower, " "+token) {
				candidates = append(candidates, full)
			}
		}
		if len(candidates) == 1 {
			add(candidates[0])
		}
	}
	return out
}

// MatchAssignee maps a model-proposed assignee onto one of speakers. Exact
// case-insensitive matches win outright; containment scores by length
// ratio; anything else uses the match ratio. Returns "" below threshold.
func MatchAssignee(name string, speakers []string, threshold float64) string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" || len(speakers) == 0 {
		return ""
	}
	var (
		best      string
		bestScore float64
	)
	for _, speaker := range speakers {
		hay := strings.ToLower(strings.TrimSpace(speaker))
		if hay == needle {
			return speaker
		}
		var score float64
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			score = float64(min(len(needle), len(hay))) / float64(max(len(needle), len(hay)))
		} else {
			score = textutil.FoldedMatchRatio(needle, hay)
		}
		if score > bestScore {
			best, bestScore = speaker, score
		}
	}
	if bestScore >= threshold {
		return best
	}
	return ""
}
