package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Commit pending cookie writes",
		Long: `Ask the store to write pending changes to the database and wait until it has.

Every command also commits on exit; flush is for checking that the
database is writable.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(rootOpts, cmd)
		},
	}
}

func runFlush(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = await(ctx, s, func(done func(struct{})) {
		s.proxy.FlushStore(func() { done(struct{}{}) })
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "flush interrupted", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(map[string]any{"flushed": true, "ephemeral": s.cfg.Database.Path == ""})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s flushed\n", okMark("✓"))
	return nil
}
