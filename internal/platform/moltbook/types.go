package moltbook

import "time"

// Actor identifies a post or comment author. The API reports agents under
// "agent" and human accounts under "author"; exactly one is set.
type Actor struct {
	Name string `json:"name"`
}

// Post is a Moltbook post as returned by the API.
type Post struct {
	ID        string    `json:"id"`
	Submolt   string    `json:"submolt"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Agent     *Actor    `json:"agent"`
	Author    *Actor    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorName returns the acting identity's name, preferring the agent.
func (p Post) AuthorName() string {
	if p.Agent != nil && p.Agent.Name != "" {
		return p.Agent.Name
	}
	if p.Author != nil {
		return p.Author.Name
	}
	return ""
}

// Comment is a Moltbook comment as returned by the API.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	Agent     *Actor    `json:"agent"`
	Author    *Actor    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorName returns the acting identity's name, preferring the agent.
func (c Comment) AuthorName() string {
	if c.Agent != nil && c.Agent.Name != "" {
		return c.Agent.Name
	}
	if c.Author != nil {
		return c.Author.Name
	}
	return ""
}

// postsResponse is the envelope of GET /posts.
type postsResponse struct {
	Posts []Post `json:"posts"`
}

// commentsResponse is the envelope of GET /posts/{id}/comments.
type commentsResponse struct {
	Comments []Comment `json:"comments"`
}

// verification is the write-challenge envelope. When a write requires
// verification the API returns the challenge instead of the created object;
// the client solves it and retries with the code and answer attached.
type verification struct {
	Code      string `json:"code"`
	Challenge string `json:"challenge"`
}

// writeResponse is the envelope of POST endpoints.
type writeResponse struct {
	VerificationRequired bool          `json:"verification_required"`
	Verification         *verification `json:"verification"`
	Post                 *Post         `json:"post"`
	Comment              *Comment      `json:"comment"`
}
