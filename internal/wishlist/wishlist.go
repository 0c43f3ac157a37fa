// Package wishlist keeps a local wishlist mirrored against the server.
//
// Structurally a smaller cart synchronizer: same reducer-driven local
// state and resync-on-session-change pattern, but with no quantity to
// make optimism low-risk, so every mutation waits for the server.
package wishlist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/model"
	"github.com/lenscart/lenscart/internal/notify"
)

// State is the local wishlist entry list.
type State struct {
	Entries []model.WishlistEntry
}

// Action is a wishlist transition applied by Reduce.
type Action interface{ isAction() }

// AddEntry saves a product; adding an already-saved product is a no-op.
type AddEntry struct {
	Product model.ProductRef
	At      time.Time
}

// RemoveEntry drops the entry for a product.
type RemoveEntry struct{ ProductID string }

// Clear empties the collection.
type Clear struct{}

func (AddEntry) isAction()    {}
func (RemoveEntry) isAction() {}
func (Clear) isAction()       {}

// Reduce applies one transition. Pure and synchronous; maintains at
// most one entry per product ID.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case AddEntry:
		if act.Product.ID == "" {
			return s
		}
		for _, e := range s.Entries {
			if e.Product.ID == act.Product.ID {
				return s
			}
		}
		out := State{Entries: make([]model.WishlistEntry, 0, len(s.Entries)+1)}
		out.Entries = append(out.Entries, s.Entries...)
		out.Entries = append(out.Entries, model.WishlistEntry{Product: act.Product, AddedAt: act.At})
		return out
	case RemoveEntry:
		out := State{Entries: make([]model.WishlistEntry, 0, len(s.Entries))}
		for _, e := range s.Entries {
			if e.Product.ID != act.ProductID {
				out.Entries = append(out.Entries, e)
			}
		}
		return out
	case Clear:
		return State{}
	}
	return s
}

// API is the slice of the request gateway the synchronizer drives.
type API interface {
	FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error)
	AddWishlistItem(ctx context.Context, productID string) error
	RemoveWishlistItem(ctx context.Context, productID string) error
	ClearWishlist(ctx context.Context) error
}

// Sessions is the read side of the session manager the synchronizer
// consumes.
type Sessions interface {
	Session() model.Session
	Subscribe(ctx context.Context) <-chan model.Session
	Expire(ctx context.Context)
}

// Synchronizer mirrors the local wishlist against the server. Every
// mutation is server-first.
type Synchronizer struct {
	api      API
	sessions Sessions
	notifier notify.Notifier
	log      *zap.Logger

	mu    sync.Mutex
	state State
}

// NewSynchronizer constructs a wishlist synchronizer with an empty
// local state; call Resync or Run to populate it.
func NewSynchronizer(api API, sessions Sessions, notifier notify.Notifier, log *zap.Logger) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{api: api, sessions: sessions, notifier: notifier, log: log}
}

// Entries returns a copy of the current wishlist.
func (s *Synchronizer) Entries() []model.WishlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WishlistEntry(nil), s.state.Entries...)
}

// Contains reports whether a product is saved.
func (s *Synchronizer) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.Entries {
		if e.Product.ID == productID {
			return true
		}
	}
	return false
}

// Count is the number of saved products.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Entries)
}

// Add saves a product. Requires an authenticated session.
func (s *Synchronizer) Add(ctx context.Context, product model.ProductRef) error {
	if err := s.requireSession("Couldn't save item"); err != nil {
		return err
	}
	if err := s.api.AddWishlistItem(ctx, product.ID); err != nil {
		return s.fail(ctx, "Couldn't save item", err)
	}
	s.apply(AddEntry{Product: product, At: time.Now()})
	s.notifier.Info("Saved for later", product.Name)
	return nil
}

// Remove drops a product from the wishlist.
func (s *Synchronizer) Remove(ctx context.Context, productID string) error {
	if err := s.requireSession("Couldn't remove item"); err != nil {
		return err
	}
	if err := s.api.RemoveWishlistItem(ctx, productID); err != nil {
		return s.fail(ctx, "Couldn't remove item", err)
	}
	s.apply(RemoveEntry{ProductID: productID})
	return nil
}

// ClearAll empties the wishlist.
func (s *Synchronizer) ClearAll(ctx context.Context) error {
	if err := s.requireSession("Couldn't clear wishlist"); err != nil {
		return err
	}
	if err := s.api.ClearWishlist(ctx); err != nil {
		return s.fail(ctx, "Couldn't clear wishlist", err)
	}
	s.apply(Clear{})
	return nil
}

// Resync discards local state and rebuilds it from the server.
func (s *Synchronizer) Resync(ctx context.Context) error {
	if s.sessions.Session().Status != model.StatusAuthenticated {
		s.apply(Clear{})
		return nil
	}
	entries, err := s.api.FetchWishlist(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrAuthExpired) {
			s.sessions.Expire(ctx)
			return err
		}
		s.log.Warn("wishlist resync failed", zap.Error(err))
		return err
	}

	next := State{}
	for _, e := range entries {
		next = Reduce(next, AddEntry{Product: e.Product, At: e.AddedAt})
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.log.Debug("wishlist resynced", zap.Int("entries", len(next.Entries)))
	return nil
}

// Run resyncs on every session change until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) {
	for range s.sessions.Subscribe(ctx) {
		if err := s.Resync(ctx); err != nil {
			s.log.Warn("resync on session change", zap.Error(err))
		}
	}
}

func (s *Synchronizer) apply(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	s.mu.Unlock()
}

func (s *Synchronizer) requireSession(title string) error {
	if s.sessions.Session().Status != model.StatusAuthenticated {
		s.notifier.Error(title, "Log in to manage your wishlist.")
		return errs.ErrLoginRequired
	}
	return nil
}

func (s *Synchronizer) fail(ctx context.Context, title string, err error) error {
	switch {
	case errors.Is(err, errs.ErrAuthExpired):
		s.sessions.Expire(ctx)
	default:
		var se *errs.ServerError
		if errors.As(err, &se) {
			s.notifier.Error(title, se.Message)
		} else {
			s.notifier.Error(title, "The store is unreachable right now. Please try again.")
		}
	}
	return err
}
