package vertex

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the OAuth scope required by Vertex AI.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewTokenSource returns a static source for accessToken when it is set,
// and Application Default Credentials otherwise.
func NewTokenSource(ctx context.Context, accessToken string) (oauth2.TokenSource, error) {
	if accessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), nil
	}
	return google.DefaultTokenSource(ctx, CloudPlatformScope)
}
