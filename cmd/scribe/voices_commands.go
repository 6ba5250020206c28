package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/app"
	"scribe/internal/meetings"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage speaker intro samples",
	}
	cmd.AddCommand(newVoicesSyncCommand(ctx))
	cmd.AddCommand(newVoicesListCommand(ctx))
	return cmd
}

func newVoicesSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download voice samples from blob storage into the intro directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(func(c *app.Container) error {
				samples, err := c.Voices.Sync(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(samples) == 0 {
					fmt.Fprintln(out, "No voice samples in blob storage")
					return nil
				}
				rows := make([][]string, 0, len(samples))
				downloaded := 0
				for _, s := range samples {
					if s.Downloaded {
						downloaded++
					}
					rows = append(rows, []string{s.DisplayName, s.BlobName, yesNo(s.Downloaded), s.LocalPath})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					headers: []string{"Speaker", "Blob", "Downloaded", "Local Path"},
				}, rows))
				fmt.Fprintf(out, "%d samples, %d downloaded\n", len(samples), downloaded)
				return nil
			})
		},
	}
}

func newVoicesListCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered speakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withContainer(func(c *app.Container) error {
				users, err := c.Meetings.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if users == nil {
					users = []meetings.User{}
				}
				if done, err := writeStructured(cmd, outFormat, users); done {
					return err
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No registered speakers")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{u.DisplayName, u.Email, u.VoiceSample})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					headers: []string{"Name", "Email", "Voice Sample"},
					wrap:    map[int]int{2: 60},
				}, rows))
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}
