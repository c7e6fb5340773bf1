package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Guiraud/gallery-dl/internal/options"
)

// TokenPersister writes an obtained token back into the user's
// configuration so later jobs can use it.
type TokenPersister func(category, instance string, token *oauth2.Token) error

// OAuthRequest describes one `oauth:category[:instance]` setup run.
// Instance selects the host of a federated service; endpoint URLs may carry
// an "{instance}" placeholder for it.
type OAuthRequest struct {
	Category     string
	Instance     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// RequestFromLookup fills an OAuthRequest from the category's options.
func RequestFromLookup(category, instance string, opts options.Lookup) (OAuthRequest, error) {
	req := OAuthRequest{
		Category:     category,
		Instance:     instance,
		ClientID:     opts.String("client-id", ""),
		ClientSecret: opts.String("client-secret", ""),
		AuthURL:      opts.String("auth-url", ""),
		TokenURL:     opts.String("token-url", ""),
		Scopes:       opts.StringSlice("scopes"),
	}
	if req.ClientID == "" {
		return OAuthRequest{}, eris.Errorf("auth: oauth setup for %s needs a client-id option", category)
	}
	if req.AuthURL == "" || req.TokenURL == "" {
		return OAuthRequest{}, eris.Errorf("auth: oauth setup for %s needs auth-url and token-url options", category)
	}
	if instance != "" {
		req.AuthURL = strings.ReplaceAll(req.AuthURL, "{instance}", instance)
		req.TokenURL = strings.ReplaceAll(req.TokenURL, "{instance}", instance)
	}
	return req, nil
}

// OAuthFlow runs the three-step authorization-code flow: print the
// authorization URL, capture the redirect on a loopback listener, exchange
// the code for tokens, and persist them.
type OAuthFlow struct {
	Port    int
	Timeout time.Duration

	// Prompt receives the authorization URL to show the user. Defaults to
	// printing on stdout.
	Prompt func(url string)
}

// Setup executes the flow for one request.
func (f *OAuthFlow) Setup(ctx context.Context, req OAuthRequest, persist TokenPersister) error {
	port := f.Port
	if port == 0 {
		port = 6414
	}
	timeout := f.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	cfg := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Scopes:       req.Scopes,
		RedirectURL:  fmt.Sprintf("http://localhost:%d/", port),
		Endpoint: oauth2.Endpoint{
			AuthURL:  req.AuthURL,
			TokenURL: req.TokenURL,
		},
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errMsg := q.Get("error"); errMsg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			results <- callback{err: eris.Errorf("auth: authorization denied: %s", errMsg)}
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callback{err: eris.New("auth: oauth state mismatch")}
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this tab.")
		results <- callback{code: q.Get("code")}
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return eris.Wrapf(err, "auth: listen on port %d", port)
	}
	server := &http.Server{Handler: router}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			results <- callback{err: eris.Wrap(serveErr, "auth: redirect listener")}
		}
	}()
	defer server.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if f.Prompt != nil {
		f.Prompt(authURL)
	} else {
		fmt.Println("Open this URL in your browser to authorize:")
		fmt.Println(authURL)
	}

	var code string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return eris.Errorf("auth: oauth setup for %s timed out", req.Category)
	case cb := <-results:
		if cb.err != nil {
			return cb.err
		}
		code = cb.code
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return eris.Wrapf(err, "auth: exchange code for %s", req.Category)
	}

	if err := persist(req.Category, req.Instance, token); err != nil {
		return eris.Wrapf(err, "auth: persist token for %s", req.Category)
	}

	zap.L().Info("oauth tokens stored",
		zap.String("category", req.Category),
		zap.String("instance", req.Instance),
	)
	return nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", eris.Wrap(err, "auth: generate state")
	}
	return hex.EncodeToString(buf), nil
}
