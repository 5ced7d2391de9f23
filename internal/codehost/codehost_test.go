package codehost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name string
		text string
		want PRRef
	}{
		{
			name: "url",
			text: "Merged in https://github.com/SorraTheOrc/SorraAgents/pull/318 yesterday",
			want: PRRef{Owner: "SorraTheOrc", Repo: "SorraAgents", Number: 318},
		},
		{
			name: "enterprise url",
			text: "Merged: https://ghe.example.com/acme/api/pull/42",
			want: PRRef{Owner: "acme", Repo: "api", Number: 42},
		},
		{
			name: "enterprise url with port",
			text: "see http://git.internal:8443/platform/infra/pull/7.",
			want: PRRef{Owner: "platform", Repo: "infra", Number: 7},
		},
		{
			name: "shorthand",
			text: "see SorraTheOrc/SorraAgents#42 for details",
			want: PRRef{Owner: "SorraTheOrc", Repo: "SorraAgents", Number: 42},
		},
		{
			name: "url preferred over earlier shorthand",
			text: "a/b#1 then https://github.com/c/d/pull/2",
			want: PRRef{Owner: "c", Repo: "d", Number: 2},
		},
		{
			name: "first url wins",
			text: "https://github.com/o/r/pull/7 and https://github.com/o/r/pull/8",
			want: PRRef{Owner: "o", Repo: "r", Number: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReference(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReference_None(t *testing.T) {
	for _, text := range []string{"", "no pr here", "issue #12", "https://github.com/o/r/issues/3", "https://ghe.example.com/o/r/issues/3"} {
		_, err := ParseReference(text)
		assert.ErrorIs(t, err, ErrNoReference, text)
	}
}

func TestPRRef_String(t *testing.T) {
	ref := PRRef{Owner: "o", Repo: "r", Number: 9}
	assert.Equal(t, "o/r", ref.Slug())
	assert.Equal(t, "o/r#9", ref.String())
}

func newGitHubTestServer(t *testing.T, handler http.HandlerFunc) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gh, err := NewGitHub(GitHubConfig{BaseURL: srv.URL, Token: "test-token", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return gh
}

func TestGitHub_IsMerged(t *testing.T) {
	var gotPath, gotAuth string
	gh := newGitHubTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	merged, err := gh.IsMerged(context.Background(), PRRef{Owner: "o", Repo: "r", Number: 5})
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, "/repos/o/r/pulls/5/merge", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestGitHub_IsMerged_NotMerged(t *testing.T) {
	gh := newGitHubTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	merged, err := gh.IsMerged(context.Background(), PRRef{Owner: "o", Repo: "r", Number: 5})
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestGitHub_IsMerged_ServerError(t *testing.T) {
	gh := newGitHubTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := gh.IsMerged(context.Background(), PRRef{Owner: "o", Repo: "r", Number: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "o/r#5")
}

func TestGitHub_RateLimiterHonorsContext(t *testing.T) {
	gh, err := NewGitHub(GitHubConfig{BaseURL: "http://127.0.0.1:1", RequestsPerSecond: 0.001})
	require.NoError(t, err)
	// Drain the single burst token.
	require.True(t, gh.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = gh.IsMerged(ctx, PRRef{Owner: "o", Repo: "r", Number: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
