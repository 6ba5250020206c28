package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/app"
	"scribe/internal/jobs"
	"scribe/internal/meetings"
)

func newMeetingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "meetings",
		Aliases: []string{"meeting", "m"},
		Short:   "Inspect imported meetings",
	}
	cmd.AddCommand(newMeetingsListCommand(ctx))
	cmd.AddCommand(newMeetingsShowCommand(ctx))
	return cmd
}

func newMeetingsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		limit    int
		format   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			filter := meetings.ListFilter{Limit: limit}
			for _, value := range statuses {
				status, err := jobs.ParseStatus(value)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withContainer(func(c *app.Container) error {
				list, err := c.Meetings.ListMeetings(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if list == nil {
					list = []meetings.Meeting{}
				}
				if done, err := writeStructured(cmd, outFormat, list); done {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No meetings")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(list))
				for _, m := range list {
					rows = append(rows, []string{
						m.ID,
						truncate(displayTitle(m), 40),
						statusLabel(m.Status, colorize),
						m.StartedAt,
						strconv.Itoa(m.DraftCount),
						truncate(m.Error, 50),
					})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					headers: []string{"ID", "Title", "Status", "Started", "Drafts", "Error"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (QUEUED, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum meetings to list (0 for all)")
	addFormatFlag(cmd, &format)
	return cmd
}

type meetingView struct {
	Meeting *meetings.Meeting     `json:"meeting" yaml:"meeting"`
	Tasks   []meetings.StoredTask `json:"tasks" yaml:"tasks"`
}

func newMeetingsShowCommand(ctx *commandContext) *cobra.Command {
	var (
		format         string
		withTranscript bool
	)
	cmd := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show a meeting and its extracted tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withContainer(func(c *app.Container) error {
				meeting, err := c.Meetings.GetMeeting(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tasks, err := c.Meetings.ListTasks(cmd.Context(), meetings.TaskFilter{MeetingID: meeting.ID})
				if err != nil {
					return err
				}
				transcript := meeting.Transcript
				if !withTranscript {
					meeting.Transcript = ""
				}
				if tasks == nil {
					tasks = []meetings.StoredTask{}
				}
				if done, err := writeStructured(cmd, outFormat, meetingView{Meeting: meeting, Tasks: tasks}); done {
					return err
				}
				renderMeeting(cmd, meeting, tasks)
				if withTranscript && transcript != "" {
					out := cmd.OutOrStdout()
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Transcript:")
					fmt.Fprintln(out, transcript)
				}
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	cmd.Flags().BoolVar(&withTranscript, "transcript", false, "Include the stored transcript")
	return cmd
}

func renderMeeting(cmd *cobra.Command, m *meetings.Meeting, tasks []meetings.StoredTask) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Meeting:    %s\n", m.ID)
	fmt.Fprintf(out, "Title:      %s\n", displayTitle(*m))
	fmt.Fprintf(out, "Status:     %s\n", statusLabel(m.Status, colorize))
	if m.StartedAt != "" {
		fmt.Fprintf(out, "Started:    %s\n", m.StartedAt)
	}
	if m.BlobURL != "" {
		fmt.Fprintf(out, "Source:     %s\n", m.BlobURL)
	}
	if m.TranscriptURI != "" {
		fmt.Fprintf(out, "Transcript: %s\n", m.TranscriptURI)
	}
	if m.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", m.Error)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "\nNo tasks extracted")
		return
	}
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		points := "-"
		if task.StoryPoints != nil {
			points = strconv.Itoa(*task.StoryPoints)
		}
		assignee := task.AssigneeName
		if assignee == "" {
			assignee = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(task.Position + 1),
			task.Summary,
			string(task.IssueType),
			string(task.Priority),
			points,
			assignee,
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(tableSpec{
		title:   fmt.Sprintf("%d draft tasks", len(tasks)),
		headers: []string{"#", "Summary", "Type", "Priority", "Points", "Assignee"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		wrap:    map[int]int{1: 60},
	}, rows))
}

func displayTitle(m meetings.Meeting) string {
	if title := strings.TrimSpace(m.Title); title != "" {
		return title
	}
	if m.OriginalFilename != "" {
		return m.OriginalFilename
	}
	return "(untitled)"
}
