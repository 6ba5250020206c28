package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/app"
	"scribe/internal/jobs"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the import job queue",
	}
	cmd.AddCommand(newQueueStatsCommand(ctx))
	cmd.AddCommand(newQueueDeadLettersCommand(ctx))
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show visible, leased and dead-lettered message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withContainer(func(c *app.Container) error {
				stats, err := c.Queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				view := api.FromQueueStats(stats, nil)
				if done, err := writeStructured(cmd, outFormat, view); done {
					return err
				}
				oldest := "-"
				if !stats.OldestQueued.IsZero() {
					oldest = fmt.Sprintf("%s (%s ago)", stats.OldestQueued.Local().Format(time.DateTime),
						time.Since(stats.OldestQueued).Truncate(time.Second))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
					title:   "Queue " + c.Queue.Name(),
					headers: []string{"State", "Messages"},
					aligns:  []columnAlignment{alignLeft, alignRight},
				}, [][]string{
					{"Visible", strconv.Itoa(stats.Visible)},
					{"Leased", strconv.Itoa(stats.Leased)},
					{"Dead-lettered", strconv.Itoa(stats.DeadLettered)},
					{"Oldest message", oldest},
				}))
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

type deadLetterView struct {
	ID             string    `json:"id" yaml:"id"`
	MeetingID      string    `json:"meeting_id,omitempty" yaml:"meeting_id,omitempty"`
	DequeueCount   int       `json:"dequeue_count" yaml:"dequeue_count"`
	EnqueuedAt     time.Time `json:"enqueued_at" yaml:"enqueued_at"`
	DeadLetteredAt time.Time `json:"dead_lettered_at" yaml:"dead_lettered_at"`
	Body           string    `json:"body" yaml:"body"`
}

func newQueueDeadLettersCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List messages removed after exhausting their deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withContainer(func(c *app.Container) error {
				letters, err := c.Queue.DeadLetters(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := make([]deadLetterView, 0, len(letters))
				for _, letter := range letters {
					view := deadLetterView{
						ID:             letter.ID,
						DequeueCount:   letter.DequeueCount,
						EnqueuedAt:     letter.EnqueuedAt,
						DeadLetteredAt: letter.DeadLetteredAt,
						Body:           string(letter.Body),
					}
					if job, err := jobs.Unmarshal(letter.Body); err == nil {
						view.MeetingID = job.MeetingID
					}
					views = append(views, view)
				}
				if done, err := writeStructured(cmd, outFormat, views); done {
					return err
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No dead-lettered messages")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					meetingID := v.MeetingID
					if meetingID == "" {
						meetingID = "(undecodable)"
					}
					rows = append(rows, []string{
						v.ID,
						meetingID,
						strconv.Itoa(v.DequeueCount),
						v.DeadLetteredAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					headers: []string{"Message", "Meeting", "Deliveries", "Dead-lettered"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum messages to list")
	addFormatFlag(cmd, &format)
	return cmd
}
