// Package source resolves an account name into its profile and posts.
package source

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProfileNotFound is returned when the account does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrPrivateProfile is returned when the account's posts are not public.
	ErrPrivateProfile = errors.New("profile is private")
)

// Profile describes an account.
type Profile struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name,omitempty"`
	PictureURL string `json:"profile_pic_url,omitempty"`
	Private    bool   `json:"is_private"`
}

// Post is a single published post. A post may carry several images (carousels).
type Post struct {
	ID        string    `json:"id"`
	TakenAt   time.Time `json:"taken_at"`
	IsVideo   bool      `json:"is_video"`
	ImageURLs []string  `json:"images"`
}

// Source is an upstream provider of profiles and posts.
type Source interface {
	// Profile returns the account's profile.
	Profile(ctx context.Context, username string) (*Profile, error)

	// Posts calls fn for each of the account's posts, newest first, until
	// fn returns false or the posts are exhausted.
	Posts(ctx context.Context, username string, fn func(Post) bool) error
}
