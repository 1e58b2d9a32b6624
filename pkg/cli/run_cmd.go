package cli

import (
	"github.com/spf13/cobra"

	"github.com/mallard-db/mallard/internal/script"
)

// newRunCmd builds the run subcommand: execute a Starlark walkthrough
// script against a fresh session.
func newRunCmd(opts *connectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.star>",
		Short: "Run a Starlark script against the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			rt := script.New(sess, cmd.OutOrStdout())
			if err := rt.RunFile(ctx, args[0]); err != nil {
				return err
			}
			return sess.Close(ctx)
		},
	}
}
