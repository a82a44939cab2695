package cli

import (
	"fmt"

	"github.com/dan-solli/moex/pkg/identity"
	"github.com/spf13/cobra"
)

func init() {
	person := &cobra.Command{
		Use:   "person",
		Short: "Manage the people MoeX recognizes",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a person with a secret word",
		RunE:  runPersonAdd,
	}
	add.Flags().String("name", "", "Display name (required)")
	add.Flags().String("email", "", "Work email")
	add.Flags().String("handle", "", "Chat handle")
	add.Flags().String("tags", "", "Team or department tags")
	add.Flags().String("persona", "", "Special instructions for this person")
	add.Flags().String("secret", "", "Secret word (required)")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("secret")

	disable := &cobra.Command{
		Use:   "disable <person-id>",
		Short: "Disable a person; their sessions stop resolving",
		Args:  cobra.ExactArgs(1),
		RunE:  runPersonDisable,
	}

	person.AddCommand(add, disable)
	RootCmd.AddCommand(person)
}

func runPersonAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	email, _ := flags.GetString("email")
	handle, _ := flags.GetString("handle")
	tags, _ := flags.GetString("tags")
	persona, _ := flags.GetString("persona")
	secret, _ := flags.GetString("secret")

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	p, err := app.Identity().Register(cmd.Context(), identity.Registration{
		Name:    name,
		Email:   email,
		Handle:  handle,
		Tags:    tags,
		Persona: persona,
		Secret:  secret,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), p.ID)
	return nil
}

func runPersonDisable(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Identity().Disable(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("disable: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "disabled %s\n", args[0])
	return nil
}
