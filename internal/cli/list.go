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

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Line bool // print the Cookie header line instead of the cookies
}

// CookieView is the JSON form of a stored cookie.
type CookieView struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Created  string `json:"created"`
	Expires  string `json:"expires,omitempty"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httponly"`
	SameSite string `json:"samesite"`
	Priority string `json:"priority"`
}

func newCookieView(c cookie.Canonical) CookieView {
	v := CookieView{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Created:  c.CreationDate.UTC().Format(time.RFC3339),
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite.String(),
		Priority: c.Priority.String(),
	}
	if c.IsPersistent() {
		v.Expires = c.ExpiryDate.UTC().Format(time.RFC3339)
	}
	return v
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [url]",
		Short: "List stored cookies",
		Long: `List every cookie in the store, or only those that would be sent to a URL.

With --line the cookies for the URL are printed as a Cookie header value.
HttpOnly cookies are always included.

Examples:
  cookieproxy list
  cookieproxy list https://example.com/docs --format json
  cookieproxy list https://example.com/ --line`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rawURL string
			if len(args) == 1 {
				rawURL = args[0]
			}
			return runList(opts, rawURL, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Line, "line", false, "print the Cookie header line for the url")

	return cmd
}

func runList(opts *ListOptions, rawURL string, cmd *cobra.Command) error {
	var u *url.URL
	if rawURL != "" {
		var err error
		if u, err = url.Parse(rawURL); err != nil || !u.IsAbs() {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid url %q", rawURL))
		}
	}
	if opts.Line && u == nil {
		return NewExitError(ExitCommandError, "--line requires a url")
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	if opts.Line {
		line, err := await(ctx, s, func(done func(string)) {
			s.proxy.GetCookiesWithOptionsAsync(u, cookie.Options{IncludeHTTPOnly: true}, done)
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "list interrupted", err)
		}
		if opts.Format == "json" {
			return f.Success(map[string]string{"url": u.String(), "line": line})
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	}

	list, err := await(ctx, s, func(done func(cookie.List)) {
		var id int
		if u != nil {
			id = s.manager.GetCookies(u)
		} else {
			id = s.manager.GetAllCookies()
		}
		if id == cookiemanager.InvalidRequestID {
			done(nil)
			return
		}
		s.relay.got[id] = done
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "list interrupted", err)
	}
	f.VerboseLog("%d cookie(s)", len(list))

	views := make([]CookieView, len(list))
	for i, c := range list {
		views[i] = newCookieView(c)
	}
	if opts.Format == "json" {
		return f.Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No cookies.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(w, "%s=%s\t%s%s\t%s\n", emphasis(v.Name), v.Value, v.Domain, v.Path, attributes(v))
	}
	return nil
}

func attributes(v CookieView) string {
	attrs := []string{"created " + v.Created}
	if v.Expires != "" {
		attrs = append(attrs, "expires "+v.Expires)
	} else {
		attrs = append(attrs, "session")
	}
	if v.Secure {
		attrs = append(attrs, "secure")
	}
	if v.HTTPOnly {
		attrs = append(attrs, "httponly")
	}
	attrs = append(attrs, "samesite="+v.SameSite, "priority="+v.Priority)
	return strings.Join(attrs, " ")
}
