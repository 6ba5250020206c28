package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scribe/internal/app"
	"scribe/internal/workflow"
)

type submitFlags struct {
	meetingID string
	title     string
	startedAt string
	filename  string
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.meetingID, "meeting-id", "", "Meeting id (generated when empty)")
	cmd.Flags().StringVar(&f.title, "title", "", "Meeting title")
	cmd.Flags().StringVar(&f.startedAt, "started-at", "", "Meeting start time (RFC3339)")
}

func (f *submitFlags) request(blobURL string) workflow.Request {
	return workflow.Request{
		MeetingID:        f.meetingID,
		Title:            f.title,
		StartedAt:        f.startedAt,
		BlobURL:          blobURL,
		OriginalFilename: f.filename,
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit <blob-url>",
		Short: "Queue an already stored recording or transcript for import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(func(c *app.Container) error {
				meetingID, err := c.Submitter.Submit(cmd.Context(), flags.request(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued meeting %s\n", meetingID)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.filename, "filename", "", "Original filename when the blob URL does not carry one")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	var noSubmit bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a local recording or transcript and queue it for import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			flags.filename = filepath.Base(path)
			return ctx.withContainer(func(c *app.Container) error {
				if strings.TrimSpace(flags.meetingID) == "" {
					flags.meetingID = uuid.NewString()
				}
				uri, err := c.Storage.SaveFile(cmd.Context(), flags.meetingID, flags.filename, data,
					mime.TypeByExtension(filepath.Ext(flags.filename)))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Stored %s (%d bytes)\n", uri, len(data))
				if noSubmit {
					return nil
				}
				meetingID, err := c.Submitter.Submit(cmd.Context(), flags.request(uri))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued meeting %s\n", meetingID)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Store the file without queueing an import")
	return cmd
}
