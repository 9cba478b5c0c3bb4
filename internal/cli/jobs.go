package cli

import (
	"fmt"

	"meeting-bot/internal/usecase/meetingbot"

	"github.com/spf13/cobra"
)

func NewHealthCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the bot service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := deps.Client.Health(cmd.Context())
			if err != nil {
				return err
			}
			deps.Out.Info(fmt.Sprintf("%v (%v)", h["status"], h["timestamp"]))
			return nil
		},
	}
}

func NewCreateCmd(deps *Dependencies) *cobra.Command {
	var p meetingbot.CreateJobParams
	cmd := &cobra.Command{
		Use:   "create <meeting-url>",
		Short: "Send a bot into a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.MeetingURL = args[0]
			id, err := deps.Client.CreateJob(cmd.Context(), p)
			if err != nil {
				return err
			}
			deps.Out.Info("Created job " + id)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.RecordingID, "recording", "", "recording id in the system of record (required)")
	cmd.Flags().StringVar(&p.JobID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&p.Platform, "platform", "", "google_meet, zoom or teams")
	cmd.Flags().StringVar(&p.BotName, "name", "", "display name of the bot")
	cmd.Flags().StringVar(&p.CallbackURL, "callback", "", "URL notified when the job finishes")
	_ = cmd.MarkFlagRequired("recording")
	return cmd
}

func NewGetCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := deps.Client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			deps.Out.Job(job)
			return nil
		},
	}
}

func NewListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs known to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := deps.Client.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			deps.Out.JobList(jobs)
			return nil
		},
	}
}

func NewStopCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Make the bot leave and fail the job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Client.StopJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			deps.Out.Info("Stopped job " + args[0])
			return nil
		},
	}
}

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	var data map[string]string
	cmd := &cobra.Command{
		Use:   "status <job-id> <status>",
		Short: "Post an interim session status through the internal hook",
		Long:  "Sends joined, left or participants updates the way a meeting session would. Useful when testing the system of record.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := make(map[string]any, len(data))
			for k, v := range data {
				payload[k] = v
			}
			if err := deps.Client.SendStatus(cmd.Context(), args[0], args[1], payload); err != nil {
				return err
			}
			deps.Out.Info("Sent " + args[1] + " for " + args[0])
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&data, "data", nil, "extra key=value fields")
	return cmd
}
