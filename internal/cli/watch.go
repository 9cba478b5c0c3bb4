package cli

import (
	"errors"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/jwt"

	"github.com/spf13/cobra"
)

var errWatchDone = errors.New("job finished")

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	var untilDone bool
	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Stream job updates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			err := deps.Client.Watch(cmd.Context(), jobID, func(j bot.Job) error {
				deps.Out.JobEvent(j)
				if untilDone && jobID != "" && j.Status.Terminal() {
					return errWatchDone
				}
				return nil
			})
			if errors.Is(err, errWatchDone) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "exit once the watched job is completed or failed")
	return cmd
}

func NewTokenCmd(deps *Dependencies) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := jwt.NewHMACService(deps.TokenSecret, deps.TokenIssuer)
			tok, err := svc.Issue(subject, jwt.ScopeAPI, "", ttl)
			if err != nil {
				return err
			}
			deps.Out.Info(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "botctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
