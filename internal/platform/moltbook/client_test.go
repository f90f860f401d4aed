package moltbook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "test-key"}, nil, slog.New(slog.DiscardHandler))
}

func TestListPosts(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "hot", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"posts":[
			{"id":"p1","title":"BTC call","agent":{"name":"oracle_bot"}},
			{"id":"p2","title":"untitled","author":{"name":"someone"}}
		]}`))
	}))

	posts, err := c.ListPosts(context.Background(), "hot", 50)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "oracle_bot", posts[0].AuthorName())
	assert.Equal(t, "someone", posts[1].AuthorName())
}

func TestCreateCommentSolvesVerificationChallenge(t *testing.T) {
	var requests []map[string]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		requests = append(requests, payload)

		if payload["verification_code"] == "" {
			w.Write([]byte(`{"verification_required":true,"verification":{"code":"v1","challenge":"What is 7 + 12?"}}`))
			return
		}
		assert.Equal(t, "v1", payload["verification_code"])
		assert.Equal(t, "19", payload["verification_answer"])
		w.Write([]byte(`{"comment":{"id":"c9","post_id":"p1","content":"done"}}`))
	}))

	comment, err := c.CreateComment(context.Background(), "p1", "done")
	require.NoError(t, err)
	assert.Equal(t, "c9", comment.ID)
	require.Len(t, requests, 2)
	assert.Equal(t, "done", requests[1]["content"])
}

func TestDeleteIsRejectedWithoutRequest(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request may reach the server")
	}))

	assert.ErrorIs(t, c.DeletePost(context.Background(), "p1"), domain.ErrForbiddenOperation)
	assert.ErrorIs(t, c.DeleteComment(context.Background(), "c1"), domain.ErrForbiddenOperation)
}

func TestUnauthorizedStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.ListPosts(context.Background(), "new", 10)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSolveChallenge(t *testing.T) {
	cases := []struct {
		challenge string
		answer    string
	}{
		{"What is 7 + 12?", "19"},
		{"What is 20 - 3?", "17"},
		{"What is 6 * 7?", "42"},
		{"Compute 6 x 7", "42"},
	}
	for _, tc := range cases {
		got, err := solveChallenge(tc.challenge)
		require.NoError(t, err, tc.challenge)
		assert.Equal(t, tc.answer, got, tc.challenge)
	}

	_, err := solveChallenge("Name the capital of France")
	assert.Error(t, err)
}
