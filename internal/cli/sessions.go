package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// sessionCommand creates the session management command.
func (c *CLI) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and switch the sessions that remember stage outputs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List live sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			store, err := c.sessions()
			if err != nil {
				return err
			}
			list, err := store.Store().List(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				ui.info("No sessions")
				return nil
			}
			currentID := ""
			if cur, err := store.Current(ctx); err == nil {
				currentID = cur.ID
			}
			for _, s := range list {
				marker := " "
				if s.ID == currentID {
					marker = StyleHighlight.Render("*")
				}
				ui.line(fmt.Sprintf("%s %s  %s  %s", marker, s.ID, StyleValue.Render(s.JobDir),
					StyleDim.Render(s.UpdatedAt.Local().Format(time.DateTime))))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show the outputs of a session (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			store, err := c.sessions()
			if err != nil {
				return err
			}
			sess, err := store.Current(ctx)
			if len(args) == 1 {
				sess, err = store.Store().Get(ctx, args[0])
			}
			if err != nil {
				return err
			}

			ui.line(StyleTitle.Render("Session " + sess.ID))
			ui.keyValue("job", sess.JobDir)
			ui.keyValue("updated", sess.UpdatedAt.Local().Format(time.DateTime))
			ui.keyValue("expires", sess.ExpiresAt.Local().Format(time.DateTime))
			for _, stage := range sess.Stages() {
				out := sess.Outputs[stage]
				ui.keyValue(stage, out.Path)
				ui.stats(out.Nodes, out.Edges)
			}
			if sess.Connectors != "" {
				ui.keyValue("connectors", sess.Connectors)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Make a session current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			store, err := c.sessions()
			if err != nil {
				return err
			}
			sess, err := store.Use(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ui.success("Using session %s (%s)", sess.ID, sess.JobDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete sessions; the files they point to are kept",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			store, err := c.sessions()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			removed, err := store.Store().Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			ui.success("Deleted %s", plural(len(args), "session"))
			if removed > 0 {
				ui.detail("%s expired and removed", plural(removed, "session"))
			}
			return nil
		},
	})

	return cmd
}
