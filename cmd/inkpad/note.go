package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/spf13/cobra"
)

const listSnippetLines = 1

func newNoteCmd(c *cli) *cobra.Command {
	noteCmd := &cobra.Command{
		Use:   "note",
		Short: "Create, list, show, edit and delete notes",
	}
	noteCmd.AddCommand(
		newNoteNewCmd(c),
		newNoteListCmd(c),
		newNoteShowCmd(c),
		newNoteEditCmd(c),
		newNoteRmCmd(c),
	)
	return noteCmd
}

// noteInput is the title/content pair shared by `note new` and `note edit`.
type noteInput struct {
	title       string
	content     string
	contentFile string
}

func (in *noteInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.title, "title", "", "Note title")
	cmd.Flags().StringVar(&in.content, "content", "", "Note content")
	cmd.Flags().StringVar(&in.contentFile, "content-file", "", "Read content from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
}

func (in *noteInput) params(cmd *cobra.Command) (notes.UpdateParams, error) {
	var params notes.UpdateParams
	if cmd.Flags().Changed("title") {
		params.Title = &in.title
	}
	switch {
	case cmd.Flags().Changed("content"):
		params.Content = &in.content
	case in.contentFile != "":
		data, err := readContentFile(cmd.InOrStdin(), in.contentFile)
		if err != nil {
			return params, err
		}
		content := string(data)
		params.Content = &content
	}
	return params, nil
}

func readContentFile(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("failed to read %s", path), err)
	}
	return data, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.DateTime)
}

func newNoteNewCmd(c *cli) *cobra.Command {
	var (
		in      noteInput
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a note",
		Long:  `Create a note. Without --title it is called "Untitled Note".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := in.params(cmd)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), false, func(a *app) error {
				note, err := a.ws.CreateNote(cmd.Context())
				if err != nil {
					return err
				}
				if !params.IsEmpty() {
					if note, err = a.ws.UpdateNote(cmd.Context(), note.ID, params); err != nil {
						return err
					}
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), note)
				}
				fmt.Fprintln(cmd.OutOrStdout(), note.ID)
				return nil
			})
		},
	}
	in.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func newNoteListCmd(c *cli) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list [search]",
		Short: "List notes, most recently modified first",
		Long:  `List notes. An optional search term keeps notes whose title contains it, ignoring case.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			search := ""
			if len(args) == 1 {
				search = args[0]
			}
			return c.withApp(cmd.Context(), false, func(a *app) error {
				list := a.ws.ListNotes(search)
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					if search == "" {
						fmt.Fprintln(out, "No notes yet")
					} else {
						fmt.Fprintln(out, "No matching notes")
					}
					return nil
				}
				for _, n := range list {
					fmt.Fprintf(out, "%s  %s  (%s)\n", n.ID, n.Title, formatTime(n.LastModified))
					if snippet := notes.Snippet(n, listSnippetLines); snippet != "" {
						fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(snippet, "\n", " "))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func newNoteShowCmd(c *cli) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), false, func(a *app) error {
				note, ok := a.ws.Note(args[0])
				if !ok {
					return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", args[0]), notes.ErrUnknownNote)
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, struct {
						notes.Note
						RevisionHash string `json:"revisionHash"`
					}{note, note.Revision()})
				}
				fmt.Fprintf(out, "# %s\n", note.Title)
				fmt.Fprintf(out, "Modified: %s\n", formatTime(note.LastModified))
				fmt.Fprintf(out, "Revision: %s\n\n", note.Revision())
				fmt.Fprintln(out, note.Content)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func newNoteEditCmd(c *cli) *cobra.Command {
	var (
		in        noteInput
		priorHash string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title and/or content",
		Long: `Change a note's title and/or content. Omitted fields are kept.
With --prior-hash the edit is refused if the note changed since that revision
was read (see "note show").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := in.params(cmd)
			if err != nil {
				return err
			}
			if params.IsEmpty() {
				return errs.New(errs.InvalidArgument, "nothing to update: pass --title, --content or --content-file")
			}
			id := args[0]
			return c.withApp(cmd.Context(), false, func(a *app) error {
				current, ok := a.ws.Note(id)
				if !ok {
					return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", id), notes.ErrUnknownNote)
				}
				if err := notes.CheckRevision(current, priorHash); err != nil {
					return err
				}

				ed, err := a.ws.OpenEditor(id)
				if err != nil {
					return err
				}
				if err := applyEdit(cmd.Context(), ed, a.ws.Flush, params); err != nil {
					return err
				}

				note, _ := a.ws.Note(id)
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (revision %s)\n", note.ID, note.Revision())
				return nil
			})
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&priorHash, "prior-hash", "", "Only edit if the note is still at this revision")
	return cmd
}

// noteEditor is the part of workspace.Editor that note edit drives.
type noteEditor interface {
	EditTitle(title string) error
	EditContent(content string) error
	Close()
}

// applyEdit types params into ed and flushes them. The editor is closed on
// every path; an edit that failed part way leaves nothing pending.
func applyEdit(ctx context.Context, ed noteEditor, flush func(context.Context) error, params notes.UpdateParams) error {
	defer ed.Close()
	if params.Title != nil {
		if err := ed.EditTitle(*params.Title); err != nil {
			return err
		}
	}
	if params.Content != nil {
		if err := ed.EditContent(*params.Content); err != nil {
			return err
		}
	}
	if err := flush(ctx); err != nil {
		return errs.Wrap(errs.Unavailable, "failed to save note", err)
	}
	return nil
}

func newNoteRmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note and its conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), false, func(a *app) error {
				if err := a.ws.DeleteNote(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Note deleted: %s\n", args[0])
				return nil
			})
		},
	}
}
