// Package credstore persists the client's session credentials.
//
// The store is the only client-side ground truth: two tokens and a cached
// profile. Several independent components read it without coordination
// (last writer wins); consumers that need to react to out-of-band changes
// subscribe through Watch instead of re-reading on a timer themselves.
package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/model"
)

// Credentials is the persisted session snapshot.
type Credentials struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	Profile      *model.UserProfile `json:"profile,omitempty"`
}

// Empty reports whether no session is stored.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Complete reports whether the snapshot can restore a session: both
// tokens and a cached profile.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != "" && c.Profile != nil
}

// Store persists credentials and publishes changes.
type Store interface {
	// Load returns the stored credentials, or errs.ErrNoCredentials
	// when nothing is stored.
	Load(ctx context.Context) (Credentials, error)
	// Save replaces the stored credentials.
	Save(ctx context.Context, c Credentials) error
	// Clear removes the stored credentials. Idempotent.
	Clear(ctx context.Context) error
	// Watch delivers a snapshot whenever the stored access token
	// changes, including changes made through this same handle.
	// The channel closes when ctx is done.
	Watch(ctx context.Context) <-chan Credentials
}

// pollWatch implements Watch for backends without native change
// notification: a fixed-interval poll comparing the access token against
// the last delivered one.
func pollWatch(ctx context.Context, interval time.Duration, load func(context.Context) (Credentials, error)) <-chan Credentials {
	ch := make(chan Credentials, 1)
	go func() {
		defer close(ch)

		last, _ := load(ctx)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			cur, err := load(ctx)
			if err != nil && !errors.Is(err, errs.ErrNoCredentials) {
				// backend unreachable; keep the last known state
				continue
			}
			if cur.AccessToken == last.AccessToken {
				continue
			}
			last = cur
			select {
			case ch <- cur:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
