package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cookieproxy/internal/cookiemanager"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Since string // RFC 3339, inclusive
	Until string // RFC 3339, exclusive
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete cookies by creation time",
		Long: `Delete the cookies created in [--since, --until). Without either flag
every cookie is deleted.

Examples:
  cookieproxy delete
  cookieproxy delete --since 2026-01-01T00:00:00Z`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "delete cookies created at or after this time (RFC 3339)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "delete cookies created before this time (RFC 3339)")

	return cmd
}

func runDelete(opts *DeleteOptions, cmd *cobra.Command) error {
	begin, err := parseOptionalTime("since", opts.Since)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flag", err)
	}
	end, err := parseOptionalTime("until", opts.Until)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flag", err)
	}
	if !end.IsZero() && end.Before(begin) {
		return NewExitError(ExitCommandError, "--until is before --since")
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := await(ctx, s, func(done func(int)) {
		if begin.IsZero() && end.IsZero() {
			id := s.manager.DeleteAllCookies()
			if id == cookiemanager.InvalidRequestID {
				done(0)
				return
			}
			s.relay.deleted[id] = done
			return
		}
		s.proxy.DeleteAllCreatedBetweenAsync(begin, end, done)
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "delete interrupted", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(map[string]int{"deleted": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d cookie(s)\n", okMark("✓"), n)
	return nil
}

func parseOptionalTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
