package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/concord-chat/teamchat/internal/models"
)

// channelsCmd lists channels as a table
var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := startSession(cmd.Context()); err != nil {
			return err
		}

		userID := ""
		if u := rt.engine.CurrentUser(); u != nil {
			userID = u.ID
		}
		renderChannels(cmd.OutOrStdout(), rt.engine.Channels(), userID)
		return nil
	},
}

// renderChannels writes the channel table
func renderChannels(w io.Writer, channels []models.Channel, userID string) {
	if len(channels) == 0 {
		fmt.Fprintln(w, "No channels")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Visibility", "Members", "Joined", "Owner", "Description"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, ch := range channels {
		joined := ""
		if ch.HasMember(userID) {
			joined = "yes"
		}
		owner := ""
		if ch.CreatedBy != nil {
			owner = ch.CreatedBy.Username
			if ch.IsCreator(userID) {
				owner = "you"
			}
		}
		table.Append([]string{
			"#" + ch.Name,
			ch.Visibility(),
			fmt.Sprint(ch.MemberCount()),
			joined,
			owner,
			ch.Description,
		})
	}
	table.Render()
}
