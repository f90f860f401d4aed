// Package moltbook is the REST client for the Moltbook social platform,
// where agents publish predictions and commit to markets. Writes may come
// back with a verification challenge; the client solves it and retries.
// Nothing here can delete platform content: the adjudicator's audit trail
// depends on posts and comments staying put, so DELETE-class operations are
// rejected locally before any request is made.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// rateLimitKey is the shared limiter bucket for all Moltbook calls.
const rateLimitKey = "moltbook"

// maxVerifyAttempts bounds the solve-and-retry loop on a write.
const maxVerifyAttempts = 2

// Config holds the Moltbook endpoint and credentials.
type Config struct {
	BaseURL    string // e.g. "https://www.moltbook.com/api/v1"
	APIKey     string
	RateLimit  int // requests per window, 0 disables local limiting
	RateWindow time.Duration
}

// Client is the authenticated Moltbook API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration
	logger     *slog.Logger
}

// New creates a Moltbook client. limiter may be nil when no distributed
// rate limiting is wanted.
func New(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: window,
		logger:     logger.With(slog.String("component", "moltbook")),
	}
}

// ListPosts returns recent posts under the given sort ("hot", "new").
func (c *Client) ListPosts(ctx context.Context, sort string, limit int) ([]Post, error) {
	params := url.Values{}
	params.Set("sort", sort)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/posts?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("moltbook: list posts: %w", err)
	}

	var resp postsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("moltbook: decode posts: %w", err)
	}
	return resp.Posts, nil
}

// ListComments returns the comments of a post, newest first.
func (c *Client) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	path := fmt.Sprintf("/posts/%s/comments?sort=new", url.PathEscape(postID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("moltbook: list comments of %s: %w", postID, err)
	}

	var resp commentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("moltbook: decode comments: %w", err)
	}
	return resp.Comments, nil
}

// CreatePost publishes a post to a submolt.
func (c *Client) CreatePost(ctx context.Context, submolt, title, content string) (Post, error) {
	payload := map[string]string{
		"submolt": submolt,
		"title":   title,
		"content": content,
	}

	resp, err := c.doPost(ctx, "/posts", payload)
	if err != nil {
		return Post{}, fmt.Errorf("moltbook: create post: %w", err)
	}
	if resp.Post == nil {
		return Post{}, fmt.Errorf("moltbook: create post: response missing post")
	}
	return *resp.Post, nil
}

// CreateComment publishes a comment under a post.
func (c *Client) CreateComment(ctx context.Context, postID, content string) (Comment, error) {
	path := fmt.Sprintf("/posts/%s/comments", url.PathEscape(postID))
	payload := map[string]string{
		"content": content,
	}

	resp, err := c.doPost(ctx, path, payload)
	if err != nil {
		return Comment{}, fmt.Errorf("moltbook: create comment on %s: %w", postID, err)
	}
	if resp.Comment == nil {
		return Comment{}, fmt.Errorf("moltbook: create comment on %s: response missing comment", postID)
	}
	return *resp.Comment, nil
}

// DeletePost is rejected by policy. Published predictions and results are
// the audit trail for every resolution; removing them is never allowed.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return fmt.Errorf("moltbook: delete post %s: %w", postID, domain.ErrForbiddenOperation)
}

// DeleteComment is rejected by policy, same as DeletePost.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return fmt.Errorf("moltbook: delete comment %s: %w", commentID, domain.ErrForbiddenOperation)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) allow(ctx context.Context) error {
	if c.limiter == nil || c.rateLimit <= 0 {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, rateLimitKey, c.rateLimit, c.rateWindow)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.allow(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doPost sends a write and handles the verification challenge loop. When the
// response carries a challenge, the same payload is resent with the code and
// the solved answer attached.
func (c *Client) doPost(ctx context.Context, path string, payload map[string]string) (*writeResponse, error) {
	body := make(map[string]string, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}

	for attempt := 0; attempt <= maxVerifyAttempts; attempt++ {
		resp, err := c.postOnce(ctx, path, body)
		if err != nil {
			return nil, err
		}

		if !resp.VerificationRequired {
			return resp, nil
		}
		if resp.Verification == nil {
			return nil, fmt.Errorf("verification required but no challenge given")
		}

		answer, err := solveChallenge(resp.Verification.Challenge)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("solving write verification challenge",
			slog.String("path", path),
			slog.Int("attempt", attempt+1))
		body["verification_code"] = resp.Verification.Code
		body["verification_answer"] = answer
	}

	return nil, fmt.Errorf("verification challenge not accepted after %d attempts", maxVerifyAttempts)
}

func (c *Client) postOnce(ctx context.Context, path string, payload map[string]string) (*writeResponse, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	if err := c.allow(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var wr writeResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &wr, nil
}

// challengeRe matches the arithmetic inside challenges like
// "What is 7 + 12?".
var challengeRe = regexp.MustCompile(`(-?\d+)\s*([+\-*x×])\s*(-?\d+)`)

// solveChallenge evaluates the arithmetic verification challenge.
func solveChallenge(challenge string) (string, error) {
	m := challengeRe.FindStringSubmatch(challenge)
	if m == nil {
		return "", fmt.Errorf("unsolvable verification challenge %q", challenge)
	}

	a, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("unsolvable verification challenge %q", challenge)
	}
	b, err := strconv.Atoi(m[3])
	if err != nil {
		return "", fmt.Errorf("unsolvable verification challenge %q", challenge)
	}

	var result int
	switch m[2] {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "*", "x", "×":
		result = a * b
	}
	return strconv.Itoa(result), nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
