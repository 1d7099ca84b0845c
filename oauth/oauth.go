package oauth

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Endpoint are the openstreetmap.org OAuth2 endpoints. Applications
// must be registered at https://www.openstreetmap.org/oauth2/applications.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.openstreetmap.org/oauth2/authorize",
	TokenURL: "https://www.openstreetmap.org/oauth2/token",
}

// Flow ties the oauth2 client configuration to the persisted state
// set. Config is exported so tests can point it at a fixture server.
type Flow struct {
	Config *oauth2.Config
	States *States
}

func NewFlow(clientID, clientSecret, redirectURI string, states *States) *Flow {
	return &Flow{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read_prefs"},
			Endpoint:     Endpoint,
		},
		States: states,
	}
}

// Configured reports whether client credentials are present.
func (f *Flow) Configured() bool {
	return f.Config.ClientID != "" && f.Config.ClientSecret != ""
}

// LoginURL issues a state token and returns the authorization URL to
// redirect the browser to.
func (f *Flow) LoginURL() (string, error) {
	state, err := f.States.New()
	if err != nil {
		return "", err
	}
	return f.Config.AuthCodeURL(state), nil
}

// Exchange validates the callback state and trades the authorization
// code for an access token.
func (f *Flow) Exchange(ctx context.Context, state, code string) (string, error) {
	if !f.States.Consume(state) {
		return "", errors.New("invalid or expired state parameter")
	}
	token, err := f.Config.Exchange(ctx, code)
	if err != nil {
		return "", errors.Wrap(err, "exchanging authorization code")
	}
	if token.AccessToken == "" {
		return "", errors.New("no access token received")
	}
	return token.AccessToken, nil
}
