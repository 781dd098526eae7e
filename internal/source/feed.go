package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"

	httputil "github.com/jmylchreest/feedhue/internal/util/http"
)

// maxPages bounds pagination so a misbehaving feed cannot loop forever.
const maxPages = 500

// FeedConfig configures a FeedSource.
type FeedConfig struct {
	// BaseURL is the feed service root, e.g. https://feed.example.com/api.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout per request. Zero uses the fetch default.
	Timeout time.Duration

	// Retries on temporary failures.
	Retries uint64

	// Client overrides the HTTP client.
	Client *http.Client

	Logger hclog.Logger
}

// FeedSource reads profiles and posts from a JSON feed service:
//
//	GET {base}/users/{username}                  -> Profile
//	GET {base}/users/{username}/posts?cursor=... -> {"posts": [...], "next_cursor": "..."}
type FeedSource struct {
	base   *url.URL
	opts   httputil.FetchOptions
	logger hclog.Logger
}

type postsPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"next_cursor"`
}

// NewFeedSource creates a FeedSource.
func NewFeedSource(cfg FeedConfig) (*FeedSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("feed base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid feed base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("feed base URL must be http:// or https://, got %q", cfg.BaseURL)
	}

	headers := map[string]string{"Accept": "application/json"}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &FeedSource{
		base: base,
		opts: httputil.FetchOptions{
			Timeout: cfg.Timeout,
			Headers: headers,
			Retries: cfg.Retries,
			Client:  cfg.Client,
		},
		logger: logger,
	}, nil
}

// Profile fetches the account's profile.
func (s *FeedSource) Profile(ctx context.Context, username string) (*Profile, error) {
	var profile Profile
	if err := s.get(ctx, s.profileURL(username), &profile); err != nil {
		return nil, err
	}
	if profile.Private {
		return nil, fmt.Errorf("%w: %s", ErrPrivateProfile, username)
	}
	if profile.Username == "" {
		profile.Username = username
	}
	return &profile, nil
}

// Posts pages through the account's posts.
func (s *FeedSource) Posts(ctx context.Context, username string, fn func(Post) bool) error {
	cursor := ""
	for page := 0; page < maxPages; page++ {
		var p postsPage
		if err := s.get(ctx, s.postsURL(username, cursor), &p); err != nil {
			return err
		}
		s.logger.Trace("fetched posts page", "username", username, "page", page, "posts", len(p.Posts))

		for _, post := range p.Posts {
			if !fn(post) {
				return nil
			}
		}
		if p.NextCursor == "" || p.NextCursor == cursor {
			return nil
		}
		cursor = p.NextCursor
	}
	return fmt.Errorf("posts for %s exceeded %d pages", username, maxPages)
}

func (s *FeedSource) profileURL(username string) string {
	u := *s.base
	u.Path += "/users/" + username
	return u.String()
}

func (s *FeedSource) postsURL(username, cursor string) string {
	u := *s.base
	u.Path += "/users/" + username + "/posts"
	if cursor != "" {
		u.RawQuery = url.Values{"cursor": {cursor}}.Encode()
	}
	return u.String()
}

func (s *FeedSource) get(ctx context.Context, u string, v any) error {
	data, err := httputil.Fetch(ctx, u, s.opts)
	if err != nil {
		if httputil.StatusCode(err) == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, u)
		}
		return fmt.Errorf("feed request failed: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode feed response: %w", err)
	}
	return nil
}
