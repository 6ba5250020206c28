package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueType is the tracker issue kind of a task.
type IssueType string

const (
	IssueStory IssueType = "Story"
	IssueTask  IssueType = "Task"
	IssueBug   IssueType = "Bug"
	IssueSpike IssueType = "Spike"
)

// Priority is the tracker priority of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

const (
	minSummaryLen  = 3
	maxSummaryLen  = 300
	maxStoryPoints = 100
	maxListEntries = 20
)

// Task is one extracted, validated work item.
type Task struct {
	Summary      string    `json:"summary" yaml:"summary"`
	Description  string    `json:"description" yaml:"description"`
	IssueType    IssueType `json:"issue_type" yaml:"issue_type"`
	AssigneeName *string   `json:"assignee_name" yaml:"assignee_name"`
	Priority     Priority  `json:"priority" yaml:"priority"`
	StoryPoints  *int      `json:"story_points" yaml:"story_points"`
	Labels       []string  `json:"labels" yaml:"labels"`
	Links        []string  `json:"links" yaml:"links"`
	Quotes       []string  `json:"quotes" yaml:"quotes"`
}

// Assignee returns the assignee name or "".
func (t Task) Assignee() string {
	if t.AssigneeName == nil {
		return ""
	}
	return *t.AssigneeName
}

// Result is a validated extraction with at least one task.
type Result struct {
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// ErrNoValidTasks means the payload held no task that passed validation.
var ErrNoValidTasks = errors.New("extraction produced no valid tasks")

// rawTask accepts the loose shapes models produce before validation.
type rawTask struct {
	Summary      *string         `json:"summary"`
	Description  *string         `json:"description"`
	IssueType    string          `json:"issue_type"`
	AssigneeName *string         `json:"assignee_name"`
	Priority     *string         `json:"priority"`
	StoryPoints  json.RawMessage `json:"story_points"`
	Labels       json.RawMessage `json:"labels"`
	Links        json.RawMessage `json:"links"`
	Quotes       json.RawMessage `json:"quotes"`
}

// ParseResult validates a model payload task by task. Invalid tasks are
// dropped and reported in the returned slice of per-task errors; the result is
// an error only when no task survives.
func ParseResult(payload []byte) (*Result, []error, error) {
	var envelope struct {
		Tasks []json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoValidTasks, err)
	}
	result := &Result{Tasks: make([]Task, 0, len(envelope.Tasks))}
	var dropped []error
	for i, raw := range envelope.Tasks {
		task, err := parseTask(raw)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("task %d: %w", i, err))
			continue
		}
		result.Tasks = append(result.Tasks, task)
	}
	if len(result.Tasks) == 0 {
		if len(dropped) > 0 {
			return nil, dropped, fmt.Errorf("%w: %w", ErrNoValidTasks, errors.Join(dropped...))
		}
		return nil, nil, ErrNoValidTasks
	}
	return result, dropped, nil
}

func parseTask(data json.RawMessage) (Task, error) {
	var raw rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return Task{}, err
	}
	var task Task

	summary, err := requiredText("summary", raw.Summary)
	if err != nil {
		return Task{}, err
	}
	if n := utf8.RuneCountInString(summary); n < minSummaryLen || n > maxSummaryLen {
		return Task{}, fmt.Errorf("summary length %d outside %d..%d", n, minSummaryLen, maxSummaryLen)
	}
	task.Summary = summary

	if task.Description, err = requiredText("description", raw.Description); err != nil {
		return Task{}, err
	}
	if task.IssueType, err = parseIssueType(raw.IssueType); err != nil {
		return Task{}, err
	}

	task.Priority = PriorityMedium
	if raw.Priority != nil {
		if task.Priority, err = parsePriority(*raw.Priority); err != nil {
			return Task{}, err
		}
	}

	if raw.AssigneeName != nil {
		if name := strings.TrimSpace(*raw.AssigneeName); name != "" {
			task.AssigneeName = &name
		}
	}

	if task.StoryPoints, err = parseStoryPoints(raw.StoryPoints); err != nil {
		return Task{}, err
	}
	if task.Labels, err = parseList("labels", raw.Labels); err != nil {
		return Task{}, err
	}
	if task.Links, err = parseList("links", raw.Links); err != nil {
		return Task{}, err
	}
	if task.Quotes, err = parseList("quotes", raw.Quotes); err != nil {
		return Task{}, err
	}
	return task, nil
}

func requiredText(field string, value *string) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%s is required", field)
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	return trimmed, nil
}

func parseIssueType(value string) (IssueType, error) {
	for _, candidate := range []IssueType{IssueStory, IssueTask, IssueBug, IssueSpike} {
		if strings.EqualFold(strings.TrimSpace(value), string(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue_type %q", value)
}

func parsePriority(value string) (Priority, error) {
	for _, candidate := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if strings.EqualFold(strings.TrimSpace(value), string(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}

func parseStoryPoints(raw json.RawMessage) (*int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var points float64
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("story_points: %w", err)
	}
	if points != float64(int(points)) || points < 0 || points > maxStoryPoints {
		return nil, fmt.Errorf("story_points %v outside 0..%d", points, maxStoryPoints)
	}
	n := int(points)
	return &n, nil
}

// parseList accepts null, a single string or a list of strings. Blank entries
// are dropped.
func parseList(field string, raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		raw = json.RawMessage(fmt.Sprintf("[%s]", raw))
	}
	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%s must be a list of strings", field)
	}
	if len(entries) > maxListEntries {
		return nil, fmt.Errorf("%s has %d entries, max %d", field, len(entries), maxListEntries)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", field)
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
