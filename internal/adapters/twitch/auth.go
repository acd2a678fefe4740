package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"gamefinder/internal/core/domain"
)

// DefaultTokenURL is the Twitch OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenSource exchanges an application id/secret pair for an app access
// token using the client-credentials grant. It makes exactly one call per
// Token invocation and never retries.
type TokenSource struct {
	config *clientcredentials.Config
	client *http.Client
	logger *slog.Logger
}

// NewTokenSource creates a TokenSource. An empty tokenURL selects DefaultTokenURL.
// A nil client selects http.DefaultClient.
func NewTokenSource(clientID, clientSecret, tokenURL string, client *http.Client, logger *slog.Logger) *TokenSource {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			// Twitch expects client_id and client_secret as form parameters.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		client: client,
		logger: logger,
	}
}

// Token performs the exchange and returns the bearer token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.config.ClientID == "" || s.config.ClientSecret == "" {
		return "", &domain.AuthError{Err: errors.New("client id and secret must not be empty")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.config.Token(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		authErr := &domain.AuthError{Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			authErr.StatusCode = re.Response.StatusCode
		}
		return "", authErr
	}
	if tok.AccessToken == "" {
		return "", &domain.AuthError{Err: fmt.Errorf("token endpoint returned an empty access token")}
	}

	s.logger.Debug("obtained app access token", slog.Time("expiry", tok.Expiry))
	return tok.AccessToken, nil
}
