package main

import (
	"fmt"
	"strings"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/kuitang/inkpad/internal/render"
	"github.com/spf13/cobra"
)

func newChatCmd(c *cli) *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant about a note",
	}
	chatCmd.AddCommand(
		newChatSendCmd(c),
		newChatShowCmd(c),
	)
	return chatCmd
}

func newChatSendCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "send <note-id> <message...>",
		Short: "Send a message in a note's conversation and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID := args[0]
			message := strings.Join(args[1:], " ")
			return c.withApp(cmd.Context(), true, func(a *app) error {
				turn, err := a.ws.Send(cmd.Context(), noteID, message)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), turn.Reply.Content)
				switch {
				case turn.Dropped:
					fmt.Fprintln(cmd.ErrOrStderr(), "(note was deleted before the reply arrived)")
				case turn.State == assistant.Failed:
					return errs.New(errs.Unavailable, "the assistant did not answer; the failure is recorded in the conversation")
				}
				return nil
			})
		},
	}
}

func newChatShowCmd(c *cli) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "show <note-id>",
		Short: "Print a note's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID := args[0]
			return c.withApp(cmd.Context(), false, func(a *app) error {
				if _, ok := a.ws.Note(noteID); !ok {
					return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", noteID), notes.ErrUnknownNote)
				}
				thread := a.ws.Thread(noteID)
				out := cmd.OutOrStdout()
				if html {
					fmt.Fprintln(out, render.ThreadHTML(thread))
					return nil
				}
				if len(thread) == 0 {
					fmt.Fprintln(out, "No messages yet")
					return nil
				}
				for _, m := range thread {
					fmt.Fprintf(out, "%s: %s\n", m.Role.Label(), m.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render the conversation as sanitized HTML")
	return cmd
}
