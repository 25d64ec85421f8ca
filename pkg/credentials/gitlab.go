package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is used when no GitLab instance is configured.
const DefaultBaseURL = "https://gitlab.com"

// ErrTokenRejected is returned when GitLab answers 401 for a token.
var ErrTokenRejected = errors.New("gitlab rejected the token")

// NewTokenSource returns a static bearer token source for t.
func NewTokenSource(t PersonalAccessToken) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: t.Token().PlainText(),
		TokenType:   "Bearer",
	})
}

// NewClient returns an HTTP client that authenticates every request with t.
// base supplies the underlying transport; nil means http.DefaultClient.
func NewClient(ctx context.Context, base *http.Client, t PersonalAccessToken) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, NewTokenSource(t))
}

// NewGitLabClient returns a GitLab API client for baseURL acting as t.
func NewGitLabClient(ctx context.Context, base *http.Client, baseURL string, t PersonalAccessToken) (*gitlab.Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client, err := gitlab.NewOAuthClient(t.Token().PlainText(),
		gitlab.WithBaseURL(baseURL),
		gitlab.WithHTTPClient(NewClient(ctx, base, t)),
		gitlab.WithCustomRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab client for %s: %w", t.ID(), err)
	}
	return client, nil
}

// VerifyToken asks the GitLab instance at baseURL who t belongs to.
func VerifyToken(ctx context.Context, base *http.Client, baseURL string, t PersonalAccessToken) (*gitlab.PersonalAccessToken, error) {
	client, err := NewGitLabClient(ctx, base, baseURL, t)
	if err != nil {
		return nil, err
	}

	info, resp, err := client.PersonalAccessTokens.GetSinglePersonalAccessToken(gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("verify token %s: %w", t.ID(), ErrTokenRejected)
		}
		return nil, fmt.Errorf("verify token %s: %w", t.ID(), err)
	}
	return info, nil
}
