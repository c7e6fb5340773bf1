// Package auth supplies credentials to extractors and the downloader:
// username/password pairs, cookies from files or browser stores, and the
// interactive OAuth setup flow.
package auth

import (
	"github.com/rotisserie/eris"

	"github.com/Guiraud/gallery-dl/internal/options"
)

// ErrMissingCredentials marks a required credential that was not supplied.
// It fails the whole job for that input; other inputs are unaffected.
var ErrMissingCredentials = eris.New("auth: required credentials missing")

// ErrLoginRejected marks credentials the site refused. Like a missing
// required credential it fails the whole job, but the two are distinct:
// one is a local configuration gap, the other a remote refusal.
var ErrLoginRejected = eris.New("auth: login rejected")

// Credentials is a username/password pair. The extractor owns the login
// handshake; this package only resolves the pair.
type Credentials struct {
	Username string
	Password string
}

// PasswordProvider resolves credential pairs per category. CLI-supplied
// values take precedence over configured ones.
type PasswordProvider struct {
	username string
	password string
	required map[string]bool
}

// NewPasswordProvider creates a provider with optional CLI-supplied values.
func NewPasswordProvider(username, password string) *PasswordProvider {
	return &PasswordProvider{
		username: username,
		password: password,
		required: make(map[string]bool),
	}
}

// Require marks categories for which a credential pair is mandatory. A
// missing pair for such a category is a pre-flight validation error.
func (p *PasswordProvider) Require(categories ...string) {
	for _, c := range categories {
		p.required[c] = true
	}
}

// Credentials resolves the pair for a category. The second result reports
// whether a usable pair was found; the error is non-nil only when the
// category requires credentials and none are available.
func (p *PasswordProvider) Credentials(category string, opts options.Lookup) (Credentials, bool, error) {
	creds := Credentials{
		Username: p.username,
		Password: p.password,
	}
	if creds.Username == "" {
		creds.Username = opts.String("username", "")
	}
	if creds.Password == "" {
		creds.Password = opts.String("password", "")
	}

	ok := creds.Username != "" && creds.Password != ""
	mandatory := p.required[category] || opts.Bool("login-required", false)
	if mandatory && !ok {
		return Credentials{}, false, eris.Wrapf(ErrMissingCredentials, "category %s", category)
	}
	return creds, ok, nil
}
