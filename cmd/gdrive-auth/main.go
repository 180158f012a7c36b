// Command gdrive-auth obtains the refresh token the gdrive storage provider
// needs. It serves a one-shot OAuth callback on localhost and prints the
// token as a GDRIVE_REFRESH_TOKEN line.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"cardpress/internal/pkg/config"
	"cardpress/internal/storage"
)

// errNoRefreshToken means Google skipped the token because the app was
// already authorized for this account.
var errNoRefreshToken = errors.New("no refresh_token returned; revoke the app at https://myaccount.google.com/permissions and retry")

func main() {
	if err := newCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		port int
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Authorize cardpress for Google Drive and print a refresh token",
		Long: `Reads GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET, prints a consent URL and
waits for the browser to return to a local callback.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID := config.Env("GDRIVE_CLIENT_ID", "")
			clientSecret := config.Env("GDRIVE_CLIENT_SECRET", "")
			if clientID == "" || clientSecret == "" {
				return errors.New("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set")
			}
			ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return err
			}
			defer ln.Close()

			redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr())
			conf := storage.DriveOAuthConfig(clientID, clientSecret, redirectURL)
			return authorize(cmd.Context(), conf, ln, wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "callback port on 127.0.0.1 (0 picks a free one)")
	cmd.Flags().DurationVar(&wait, "timeout", config.DurationEnv("GDRIVE_AUTH_TIMEOUT", 3*time.Minute), "how long to wait for the browser")
	return cmd
}

func authorize(ctx context.Context, conf *oauth2.Config, ln net.Listener, wait time.Duration, out io.Writer) error {
	state := randomState()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codes, errs))
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// Offline access with forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	fmt.Fprintf(out, "Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, conf.RedirectURL)

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return err
	case <-time.After(wait):
		return errors.New("timed out waiting for authorization")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return errNoRefreshToken
	}
	fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

// callbackHandler accepts the first redirect carrying state and reports its
// code or error. Later requests never block.
func callbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	fail := func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		select {
		case errs <- err:
		default:
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			fail(w, errors.New("invalid state"))
			return
		}
		if e := q.Get("error"); e != "" {
			fail(w, fmt.Errorf("auth error: %s", e))
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(w, errors.New("missing code"))
			return
		}
		fmt.Fprintln(w, "Done. You can close this window and return to the terminal.")
		select {
		case codes <- code:
		default:
		}
	})
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
