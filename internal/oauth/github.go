package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/blog-comment-api/internal/models"
)

// Provider is the boundary to the external OAuth identity provider.
type Provider interface {
	// AuthorizeURL builds the provider authorize URL carrying the correlation
	// token as opaque state. The redirect URI varies per request because it
	// carries the action parameters, so it is passed explicitly.
	AuthorizeURL(state, redirectURI string) string
	// ExchangeCode swaps an authorization code for an access token. Never
	// retried: codes are single-use, so a second attempt cannot succeed.
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	// FetchIdentity loads the authenticated profile, retrying transient
	// failures a bounded number of times.
	FetchIdentity(ctx context.Context, accessToken string) (*models.Identity, error)
}

const (
	fetchAttempts   = 3
	fetchRetryDelay = 3 * time.Second
	apiVersion      = "2022-11-28"
)

// GitHubProvider implements Provider against the GitHub OAuth and REST APIs.
type GitHubProvider struct {
	conf       *oauth2.Config
	client     *http.Client
	userAgent  string
	apiBaseURL string
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewGitHubProvider creates the GitHub relay. No scopes are requested; the
// public profile is all the coordinator needs.
func NewGitHubProvider(clientID, clientSecret, userAgent string, timeout time.Duration, log zerolog.Logger) *GitHubProvider {
	return &GitHubProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
		},
		client:     &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		apiBaseURL: "https://api.github.com",
		retryDelay: fetchRetryDelay,
		log:        log.With().Str("component", "oauth").Logger(),
	}
}

// AuthorizeURL builds the provider authorize URL for the given state token.
func (p *GitHubProvider) AuthorizeURL(state, redirectURI string) string {
	return p.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
}

// ExchangeCode performs the server-side code-for-token exchange. The redirect
// URI must match the one used in the authorize request.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.conf.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return "", models.NewUpstreamFailure("code exchange failed", err)
	}
	if token.AccessToken == "" {
		return "", models.NewUpstreamFailure("code exchange returned an empty access token", nil)
	}
	return token.AccessToken, nil
}

// githubUser mirrors the fields read from GET /user.
type githubUser struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name"`
	Login     string  `json:"login"`
	HTMLURL   string  `json:"html_url"`
	AvatarURL string  `json:"avatar_url"`
}

// FetchIdentity fetches the authenticated profile. Transport errors and
// non-2xx responses are retried up to 3 attempts with a fixed delay; a
// malformed payload is permanent and fails immediately.
func (p *GitHubProvider) FetchIdentity(ctx context.Context, accessToken string) (*models.Identity, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			p.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("Retrying identity fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		identity, retryable, err := p.fetchOnce(ctx, accessToken)
		if err == nil {
			return identity, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, models.NewUpstreamFailure("failed to fetch identity profile", lastErr)
}

func (p *GitHubProvider) fetchOnce(ctx context.Context, accessToken string) (*models.Identity, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, true, fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, false, fmt.Errorf("failed to decode identity payload: %w", err)
	}
	if user.ID == 0 {
		return nil, false, fmt.Errorf("identity payload has no id")
	}

	// Display name falls back to the login handle when the profile has no
	// name set; a profile with neither is unusable.
	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	if name == "" {
		name = user.Login
	}
	if name == "" {
		return nil, false, fmt.Errorf("identity payload has neither name nor login")
	}

	return &models.Identity{
		ID:         user.ID,
		Name:       name,
		ProfileURL: user.HTMLURL,
		AvatarURL:  user.AvatarURL,
	}, false, nil
}
