package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/concord-chat/teamchat/internal/apperr"
)

var sendTimeout time.Duration

// sendCmd posts one message and exits
var sendCmd = &cobra.Command{
	Use:   "send <channel> <text>",
	Short: "Send a message to a channel",
	Example: `  teamchat send general "deploy finished"
  teamchat send '#ops' restarting the worker pool`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()

		if err := startSession(ctx); err != nil {
			return err
		}

		ref := strings.TrimPrefix(args[0], "#")
		ch, ok := rt.engine.FindChannel(ref)
		if !ok {
			return fmt.Errorf("no channel named %q", ref)
		}
		if err := rt.engine.Select(ctx, ch.ID); err != nil {
			return fmt.Errorf("%s", apperr.Message(err))
		}
		if err := rt.engine.WaitConnected(ctx); err != nil {
			return fmt.Errorf("%s", apperr.Message(err))
		}

		if _, err := rt.engine.SendMessage(strings.Join(args[1:], " ")); err != nil {
			return fmt.Errorf("%s", apperr.Message(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to #%s\n", ch.Name)
		return nil
	},
}

func init() {
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "how long to wait for the server")
}
