package extraction_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"scribe/internal/extraction"
	"scribe/internal/services"
)

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	systems   []string
	users     []string
}

func (s *scriptedCompleter) CompleteJSON(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.systems)
	s.systems = append(s.systems, system)
	s.users = append(s.users, user)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx >= len(s.responses) {
		return "", errors.New("unexpected completion call")
	}
	return s.responses[idx], nil
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.systems)
}

const transcript = "Product Owner: We need the export button fixed by Friday.\n" +
	"Adrian: I'll take the export bug.\n" +
	"Speaker 2: Someone should spike the new search index."

func TestParseResultNormalizesFields(t *testing.T) {
	payload := `{"tasks":[{"summary":"Fix export button","description":"Export fails on Safari",
		"issue_type":"bug","assignee_name":"Adrian","priority":"high","story_points":3,
		"labels":"frontend","links":null,"quotes":["I'll take the export bug.",""]}]}`
	result, dropped, err := extraction.ParseResult([]byte(payload))
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if len(dropped) != 0 {
		t.Fatalf("unexpected dropped tasks: %v", dropped)
	}
	task := result.Tasks[0]
	if task.IssueType != extraction.IssueBug || task.Priority != extraction.PriorityHigh {
		t.Fatalf("unexpected normalization %+v", task)
	}
	if task.StoryPoints == nil || *task.StoryPoints != 3 {
		t.Fatalf("unexpected story points %v", task.StoryPoints)
	}
	if len(task.Labels) != 1 || task.Labels[0] != "frontend" {
		t.Fatalf("expected scalar label coerced to list, got %v", task.Labels)
	}
	if task.Links == nil || len(task.Links) != 0 {
		t.Fatalf("expected empty links, got %#v", task.Links)
	}
	if len(task.Quotes) != 1 {
		t.Fatalf("expected blank quote dropped, got %v", task.Quotes)
	}
	if task.Assignee() != "Adrian" {
		t.Fatalf("unexpected assignee %q", task.Assignee())
	}
}

func TestParseResultSalvagesValidTasks(t *testing.T) {
	payload := `{"tasks":[
		{"summary":"ok","description":"too short summary","issue_type":"Task","priority":"Low"},
		{"summary":"Write the migration","description":"Move users table","issue_type":"Task","story_points":500},
		{"summary":"Spike search index","description":"Evaluate options","issue_type":"Spike"}]}`
	result, dropped, err := extraction.ParseResult([]byte(payload))
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if len(result.Tasks) != 1 || result.Tasks[0].Summary != "Spike search index" {
		t.Fatalf("unexpected salvage %+v", result.Tasks)
	}
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped tasks, got %d", len(dropped))
	}
	if result.Tasks[0].Priority != extraction.PriorityMedium {
		t.Fatalf("expected default priority, got %q", result.Tasks[0].Priority)
	}
}

func TestParseResultRequiresOneTask(t *testing.T) {
	if _, _, err := extraction.ParseResult([]byte(`{"tasks":[]}`)); !errors.Is(err, extraction.ErrNoValidTasks) {
		t.Fatalf("expected ErrNoValidTasks, got %v", err)
	}
}

func TestSpeakersFromTranscript(t *testing.T) {
	text := transcript + "\nadrian: lower case is not a label\nAdrian: again"
	got := extraction.SpeakersFromTranscript(text)
	want := []string{"Product Owner", "Adrian", "Speaker 2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("SpeakersFromTranscript = %v, want %v", got, want)
	}
}

func TestExpandWithKnownNames(t *testing.T) {
	got := extraction.ExpandWithKnownNames([]string{"Adrian", "Product Owner"}, []string{"Adrian Nowak", "Beata Kowal"})
	want := []string{"Adrian", "Product Owner", "Adrian Nowak"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ExpandWithKnownNames = %v, want %v", got, want)
	}
}

func TestMatchAssignee(t *testing.T) {
	speakers := []string{"Product Owner", "Adrian Nowak", "Speaker 2"}
	cases := []struct {
		name string
		want string
	}{
		{"adrian nowak", "Adrian Nowak"},
		{"Adrian Nowakk", "Adrian Nowak"},
		{"Product Ownr", "Product Owner"},
		{"Zbigniew", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extraction.MatchAssignee(tc.name, speakers, extraction.AssigneeMatchThreshold); got != tc.want {
			t.Errorf("MatchAssignee(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractConstrainsAssigneesToSpeakers(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"```json\n" + `{"tasks":[
		{"summary":"Fix export button","description":"Export fails","issue_type":"Bug","assignee_name":"adrian"},
		{"summary":"Spike search index","description":"Evaluate","issue_type":"Spike","assignee_name":"Marta"}]}` + "\n```"}}
	extractor := extraction.New(completer)

	result, err := extractor.Extract(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(result.Tasks))
	}
	if got := result.Tasks[0].Assignee(); got != "Adrian" {
		t.Fatalf("expected assignee snapped to speaker label, got %q", got)
	}
	if result.Tasks[1].AssigneeName != nil {
		t.Fatalf("expected unknown assignee cleared, got %q", *result.Tasks[1].AssigneeName)
	}
	if !strings.Contains(completer.systems[0], `"Product Owner"`) {
		t.Fatalf("expected speakers listed in system prompt: %s", completer.systems[0])
	}
	if !strings.Contains(completer.users[0], "export button") {
		t.Fatal("expected transcript in user prompt")
	}
}

func TestExtractRepairsInvalidPayloadOnce(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"I could not produce JSON, sorry.",
		`{"tasks":[{"summary":"Fix export button","description":"Export fails","issue_type":"Bug"}]}`,
	}}
	result, err := extraction.New(completer).Extract(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if completer.calls() != 2 {
		t.Fatalf("expected one repair call, got %d calls", completer.calls())
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("unexpected tasks %+v", result.Tasks)
	}
}

func TestExtractFailsTransientlyWhenRepairStillInvalid(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"tasks":[]}`, `{"tasks":[]}`}}
	_, err := extraction.New(completer).Extract(context.Background(), transcript)
	if !errors.Is(err, extraction.ErrNoValidTasks) || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient ErrNoValidTasks, got %v", err)
	}
	if services.IsTerminal(err) {
		t.Fatal("expected repair exhaustion to be retryable")
	}
}

func TestExtractPropagatesClientErrors(t *testing.T) {
	boom := services.Wrap(services.ErrConfiguration, "llm", "complete", "unauthorized", nil)
	completer := &scriptedCompleter{errs: []error{boom}}
	_, err := extraction.New(completer).Extract(context.Background(), transcript)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExtractRejectsEmptyTranscript(t *testing.T) {
	completer := &scriptedCompleter{}
	_, err := extraction.New(completer).Extract(context.Background(), "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if completer.calls() != 0 {
		t.Fatal("expected no completion for an empty transcript")
	}
}

func TestExtractUsesKnownNames(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"tasks":[{"summary":"Fix export button","description":"Export fails","issue_type":"Bug","assignee_name":"Adrian Nowak"}]}`,
	}}
	extractor := extraction.New(completer, extraction.WithKnownNames(func() []string { return []string{"Adrian Nowak"} }))
	result, err := extractor.Extract(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := result.Tasks[0].Assignee(); got != "Adrian Nowak" {
		t.Fatalf("expected full known name kept, got %q", got)
	}
}
