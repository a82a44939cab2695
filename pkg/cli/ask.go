package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/tone"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("token", "", "Session token (empty chats as a guest)")
	cmd.Flags().Bool("external", false, "Audience is outside the organization")
	cmd.Flags().String("tag", "", "Preferred humor tag")
	cmd.Flags().Bool("json", false, "Print the full response as JSON")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	external, _ := cmd.Flags().GetBool("external")
	tag, _ := cmd.Flags().GetString("tag")
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.Chat().Handle(cmd.Context(), chat.Request{
		Token:   token,
		Message: strings.Join(args, " "),
		Meta:    tone.Meta{External: external, Tag: tag},
	})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprintln(out, resp.Reply)
	return nil
}
