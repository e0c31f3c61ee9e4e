// Package github publishes repositories to GitHub and GitHub Enterprise.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/orchestrator"
)

// DefaultHostname is the public GitHub instance
const DefaultHostname = "github.com"

// Host creates repositories on one GitHub instance. It satisfies
// orchestrator.RepoHost.
type Host struct {
	hostname     string
	organization string
	apiURL       *url.URL // overrides the API endpoint, used by tests
}

// HostOption configures a Host
type HostOption func(*Host)

// WithOrganization publishes under an organization instead of the token's user
func WithOrganization(org string) HostOption {
	return func(h *Host) { h.organization = org }
}

// WithAPIURL points the client at a specific REST endpoint
func WithAPIURL(u *url.URL) HostOption {
	return func(h *Host) { h.apiURL = u }
}

// NewHost returns a Host for hostname; empty means github.com
func NewHost(hostname string, opts ...HostOption) *Host {
	if hostname == "" {
		hostname = DefaultHostname
	}
	h := &Host{hostname: hostname}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ orchestrator.RepoHost = (*Host)(nil)

// HostURL is the URL credentials are requested for
func (h *Host) HostURL() string {
	return "https://" + h.hostname
}

// CreateRepository creates the repository and returns its clone URL
func (h *Host) CreateRepository(ctx context.Context, token string, opts orchestrator.PublishOptions) (string, error) {
	if opts.Name == "" {
		return "", fmt.Errorf("repository name is required: %w", gitgateerrors.ErrInvalidOperation)
	}

	client, err := h.client(ctx, token)
	if err != nil {
		return "", err
	}

	repo, _, err := client.Repositories.Create(ctx, h.organization, &github.Repository{
		Name:        github.String(opts.Name),
		Description: github.String(opts.Description),
		Private:     github.Bool(opts.Private),
	})
	if err != nil {
		return "", h.classify(err)
	}
	if repo.GetCloneURL() == "" {
		return "", fmt.Errorf("github returned no clone URL for %s", opts.Name)
	}
	return repo.GetCloneURL(), nil
}

// classify turns 401/403 responses into authentication errors so the caller
// can ask for other credentials
func (h *Host) classify(err error) error {
	var resp *github.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		switch resp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return gitgateerrors.NewAuthenticationError(h.HostURL(), err)
		}
	}
	return fmt.Errorf("failed to create repository: %w", err)
}

// client creates a GitHub client for the host.
// Supports both github.com and GitHub Enterprise instances.
func (h *Host) client(ctx context.Context, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	switch {
	case h.apiURL != nil:
		client.BaseURL = h.apiURL
		client.UploadURL = h.apiURL
	case h.hostname != DefaultHostname:
		// REST API: https://hostname/api/v3/
		// Upload API: https://hostname/api/uploads/
		baseURL, err := url.Parse(fmt.Sprintf("https://%s/api/v3/", h.hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL for hostname %s: %w", h.hostname, err)
		}
		uploadURL, err := url.Parse(fmt.Sprintf("https://%s/api/uploads/", h.hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse upload URL for hostname %s: %w", h.hostname, err)
		}
		client.BaseURL = baseURL
		client.UploadURL = uploadURL
	}
	return client, nil
}
