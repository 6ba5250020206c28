package extraction

import (
	"fmt"
	"strings"
)

const systemPromptBase = `You are an Agile Product Owner. Extract tracker-ready tasks from meeting transcripts.
Return STRICT JSON following the schema:
{
  "tasks": [
    {
      "summary": str, "description": str,
      "issue_type": one of ["Story","Task","Bug","Spike"],
      "assignee_name": str|null, "priority": one of ["Low","Medium","High"],
      "story_points": int|null, "labels": [str], "links": [str], "quotes": [str]
    }
  ]
}
If no assignee, set null. Use quotes to include short verbatim snippets from the transcript that justify each task.`

const repairSystemPrompt = "You repair JSON so it satisfies a strict task schema. Return valid JSON only, no prose."

func systemPrompt(speakers []string) string {
	if len(speakers) == 0 {
		return systemPromptBase
	}
	quoted := make([]string, len(speakers))
	for i, s := range speakers {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return systemPromptBase + fmt.Sprintf("\n\nIMPORTANT: The only valid assignees are the identified speakers from the meeting: [%s]. "+
		"assignee_name MUST be exactly one of these names or null.", strings.Join(quoted, ", "))
}

func userPrompt(transcript string) string {
	return "Transcript:\n" + transcript + "\n---\nReturn only JSON, no prose."
}

func repairPrompt(payload string, cause error) string {
	return fmt.Sprintf("Original completion:\n```\n%s\n```\nValidation error:\n```\n%v\n```\nReturn JSON matching the schema that passes validation.",
		payload, cause)
}
