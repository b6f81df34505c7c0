package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiemanager"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Domain   string
	Path     string
	Expires  string        // RFC 3339
	MaxAge   time.Duration // relative to now, wins over Expires
	Secure   bool
	HTTPOnly bool
	SameSite string
	Priority string
}

// SetResult is the JSON payload of the set command.
type SetResult struct {
	URL      string   `json:"url"`
	Set      []string `json:"set"`
	Rejected []string `json:"rejected"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <url> <name=value>...",
		Short: "Store cookies for a URL",
		Long: `Store one or more cookies for a URL through the cookie manager.

Every cookie gets the same attributes. Session cookies (no --expires or
--max-age) are only written to disk when database.session_cookies is
"persistent" or "restored".

Exit codes:
  0 - All cookies stored
  1 - One or more cookies rejected
  2 - Command error (bad URL or flags, database won't open, etc.)

Examples:
  cookieproxy set https://example.com/ sid=abc --max-age 24h --secure
  cookieproxy set https://example.com/docs lang=en theme=dark --path /docs`,
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "cookie domain (host-only if empty)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "cookie path (directory of the URL path if empty)")
	cmd.Flags().StringVar(&opts.Expires, "expires", "", "expiry time, RFC 3339")
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 0, "expiry relative to now")
	cmd.Flags().BoolVar(&opts.Secure, "secure", false, "send only over https")
	cmd.Flags().BoolVar(&opts.HTTPOnly, "httponly", false, "hide from scripts")
	cmd.Flags().StringVar(&opts.SameSite, "samesite", "", "no_restriction|lax|strict")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low|medium|high")

	return cmd
}

func runSet(opts *SetOptions, rawURL string, pairs []string, cmd *cobra.Command) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid url %q", rawURL))
	}
	details, err := opts.details(pairs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid cookie", err)
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	failed, err := await(ctx, s, func(done func([]cookie.Details)) {
		id := s.manager.SetCookies(u, details)
		if id == cookiemanager.InvalidRequestID {
			done(details)
			return
		}
		s.relay.set[id] = done
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "set interrupted", err)
	}

	result := SetResult{URL: u.String(), Set: []string{}, Rejected: []string{}}
	rejected := make(map[string]bool, len(failed))
	for _, d := range failed {
		rejected[d.Name] = true
		result.Rejected = append(result.Rejected, d.Name)
	}
	for _, d := range details {
		if !rejected[d.Name] {
			result.Set = append(result.Set, d.Name)
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		var failure *CLIError
		if len(failed) > 0 {
			failure = &CLIError{Code: "E_REJECTED", Message: fmt.Sprintf("%d cookie(s) rejected", len(failed))}
		}
		if err := f.Result(result, failure); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, name := range result.Set {
			fmt.Fprintf(w, "%s %s\n", okMark("✓"), emphasis(name))
		}
		for _, name := range result.Rejected {
			fmt.Fprintf(w, "%s %s rejected\n", failMark("✗"), emphasis(name))
		}
	}

	if len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d cookie(s) rejected", len(failed)))
	}
	return nil
}

// details builds one cookie.Details per name=value pair.
func (o *SetOptions) details(pairs []string) ([]cookie.Details, error) {
	base := cookie.Details{
		Domain:   o.Domain,
		Path:     o.Path,
		Secure:   o.Secure,
		HTTPOnly: o.HTTPOnly,
		Priority: cookie.PriorityDefault,
	}

	var err error
	if o.SameSite != "" {
		if base.SameSite, err = cookie.ParseSameSite(o.SameSite); err != nil {
			return nil, err
		}
	}
	if o.Priority != "" {
		if base.Priority, err = cookie.ParsePriority(o.Priority); err != nil {
			return nil, err
		}
	}
	switch {
	case o.MaxAge < 0:
		return nil, fmt.Errorf("max-age must not be negative")
	case o.MaxAge > 0:
		base.ExpirationTime = time.Now().Add(o.MaxAge)
	case o.Expires != "":
		if base.ExpirationTime, err = time.Parse(time.RFC3339, o.Expires); err != nil {
			return nil, fmt.Errorf("expires: %w", err)
		}
	}

	out := make([]cookie.Details, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not name=value", pair)
		}
		d := base
		d.Name = name
		d.Value = value
		out = append(out, d)
	}
	return out, nil
}
