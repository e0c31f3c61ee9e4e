package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/github"
	"stackit.dev/gitgate/internal/orchestrator"
)

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// newServer mocks the repository creation endpoints. Requests without the
// expected token are rejected with 401.
func newServer(t *testing.T, token string, got *[]string) *httptest.Server {
	t.Helper()
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Bad credentials"})
			return
		}
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*got = append(*got, r.URL.Path+" "+req.Name)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"name":      req.Name,
			"private":   req.Private,
			"clone_url": "https://github.example/owner/" + req.Name + ".git",
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", handler)
	mux.HandleFunc("/orgs/acme/repos", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func apiURL(t *testing.T, server *httptest.Server) *url.URL {
	t.Helper()
	u, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	return u
}

func TestCreateRepository(t *testing.T) {
	t.Parallel()

	t.Run("creates under the user", func(t *testing.T) {
		t.Parallel()
		var got []string
		server := newServer(t, "secret", &got)
		host := github.NewHost("", github.WithAPIURL(apiURL(t, server)))

		cloneURL, err := host.CreateRepository(context.Background(), "secret", orchestrator.PublishOptions{Name: "demo", Private: true})
		require.NoError(t, err)
		require.Equal(t, "https://github.example/owner/demo.git", cloneURL)
		require.Equal(t, []string{"/user/repos demo"}, got)
	})

	t.Run("creates under an organization", func(t *testing.T) {
		t.Parallel()
		var got []string
		server := newServer(t, "secret", &got)
		host := github.NewHost("", github.WithAPIURL(apiURL(t, server)), github.WithOrganization("acme"))

		_, err := host.CreateRepository(context.Background(), "secret", orchestrator.PublishOptions{Name: "tools"})
		require.NoError(t, err)
		require.Equal(t, []string{"/orgs/acme/repos tools"}, got)
	})

	t.Run("bad token is an authentication error", func(t *testing.T) {
		t.Parallel()
		var got []string
		server := newServer(t, "secret", &got)
		host := github.NewHost("", github.WithAPIURL(apiURL(t, server)))

		_, err := host.CreateRepository(context.Background(), "wrong", orchestrator.PublishOptions{Name: "demo"})
		require.ErrorIs(t, err, gitgateerrors.ErrAuthentication)
		require.True(t, gitgateerrors.IsAuthentication(err))
		require.Empty(t, got)
	})

	t.Run("name is required", func(t *testing.T) {
		t.Parallel()
		_, err := github.NewHost("").CreateRepository(context.Background(), "secret", orchestrator.PublishOptions{})
		require.ErrorIs(t, err, gitgateerrors.ErrInvalidOperation)
	})
}

func TestHostURL(t *testing.T) {
	t.Parallel()
	require.Equal(t, "https://github.com", github.NewHost("").HostURL())
	require.Equal(t, "https://ghe.corp.example", github.NewHost("ghe.corp.example").HostURL())
}
