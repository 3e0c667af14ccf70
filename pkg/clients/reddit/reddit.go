// Package reddit reads hot posts as a trend signal.
package reddit

import (
	"context"
	"fmt"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// Post is the trend relevant part of a hot post
type Post struct {
	Title       string
	Subreddit   string
	Score       int
	Comments    int
	Subscribers int
}

type Client struct {
	api   *reddit.Client
	limit int
}

// New creates a read-only client. baseURL may be empty.
func New(baseURL string) (*Client, error) {
	var opts []reddit.Opt
	if baseURL != "" {
		opts = append(opts, reddit.WithBaseURL(baseURL))
	}
	api, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Client{api: api, limit: 10}, nil
}

// HotPosts returns the current hot posts of subreddit
func (c *Client) HotPosts(ctx context.Context, subreddit string) ([]Post, error) {
	posts, _, err := c.api.Subreddit.HotPosts(ctx, subreddit, &reddit.ListOptions{Limit: c.limit})
	if err != nil {
		return nil, fmt.Errorf("r/%s hot posts: %w", subreddit, err)
	}

	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.Stickied {
			continue
		}
		out = append(out, Post{
			Title:       p.Title,
			Subreddit:   p.SubredditName,
			Score:       p.Score,
			Comments:    p.NumberOfComments,
			Subscribers: p.SubredditSubscribers,
		})
	}
	return out, nil
}
