package sheets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var requiredScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
}

// loginTimeout bounds how long the browser sign-in may take.
const loginTimeout = 5 * time.Minute

// OAuth2Config reads the installed-app client secret downloaded from the
// Google Cloud console.
func OAuth2Config(clientSecretPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("reading OAuth client secret (download it from the Google Cloud console): %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, requiredScopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing OAuth client secret %s: %w", clientSecretPath, err)
	}
	return cfg, nil
}

// loadToken loads a previously saved token from disk. A missing file yields
// a nil token.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", path, err)
	}
	return &tok, nil
}

// saveToken persists a token to disk.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// Authorize returns a usable token. It loads the saved token, refreshes it if
// needed, or runs the browser sign-in when force is set or no token works.
func Authorize(ctx context.Context, cfg *oauth2.Config, tokenPath string, force bool, out io.Writer, log zerolog.Logger) (*oauth2.Token, error) {
	var tok *oauth2.Token
	if !force {
		var err error
		tok, err = loadToken(tokenPath)
		if err != nil {
			// Corrupt token, re-auth.
			log.Warn().Err(err).Msg("ignoring saved token")
			tok = nil
		}
	}

	if tok != nil && tok.Valid() {
		return tok, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := cfg.TokenSource(ctx, tok).Token()
		if err == nil {
			if err2 := saveToken(tokenPath, refreshed); err2 != nil {
				log.Warn().Err(err2).Msg("could not save refreshed token")
			}
			return refreshed, nil
		}
		log.Warn().Err(err).Msg("token refresh failed, re-authenticating")
	}

	newTok, err := login(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokenPath, newTok); err != nil {
		log.Warn().Err(err).Msg("could not save token")
	}
	return newTok, nil
}

// login runs the installed-app flow: the consent page redirects to a
// loopback listener which receives the authorization code.
func login(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting loopback listener: %w", err)
	}
	flow := *cfg
	flow.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	// Only the first redirect counts; a reload must not block the handler.
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch {
			case q.Get("state") != state:
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			case q.Get("error") != "":
				fmt.Fprintln(w, "Sign-in failed, you can close this window.")
				deliver(result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
			default:
				fmt.Fprintln(w, "Signed in, you can close this window.")
				deliver(result{code: q.Get("code")})
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(out, "  %s\n", authURL)
	fmt.Fprintln(out)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for sign-in: %w", ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := flow.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
