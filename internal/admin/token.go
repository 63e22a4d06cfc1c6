package admin

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/server/auth"
	"github.com/dmitrijs2005/caresync/internal/server/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readSecret reads a secret without echo when in is a terminal and a
// single line otherwise.
var readSecret = func(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newTokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	var (
		identity string
		prompt   bool
		secret   = cfg.SecretKey
		ttl      = cfg.AccessTokenValidityDuration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for an identity",
		Long: `Issue a signed access token. Every device of the identity uses the same
token to reach the server; it expires after --ttl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity == "" {
				return fmt.Errorf("--identity is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			if prompt {
				var err error
				if secret, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
			}
			if secret == "" {
				return fmt.Errorf("secret is empty")
			}
			token, err := auth.GenerateToken(identity, []byte(secret), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	issue.Flags().StringVar(&identity, "identity", "", "identity the token is issued to")
	issue.Flags().StringVar(&secret, "secret", secret, "HMAC secret shared with the server")
	issue.Flags().DurationVar(&ttl, "ttl", ttl, "token validity")
	issue.Flags().BoolVar(&prompt, "prompt-secret", false, "read the secret from the terminal instead of --secret")

	cmd.AddCommand(issue)
	return cmd
}
