package cart

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

// API is the slice of the request gateway the synchronizer drives.
type API interface {
	FetchCart(ctx context.Context) ([]model.CartLine, error)
	AddCartItem(ctx context.Context, productID string, qty int, lens *model.LensOption) error
	UpdateCartItem(ctx context.Context, productID string, qty int, lens *model.LensOption) error
	RemoveCartItem(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
}

// Sessions is the read side of the session manager the synchronizer
// consumes, plus the expiry hook for irrecoverable auth failures.
type Sessions interface {
	Session() model.Session
	Subscribe(ctx context.Context) <-chan model.Session
	Expire(ctx context.Context)
}

// Synchronizer mirrors the local cart against the server cart.
//
// Additions, removals and clears are server-first: local state changes
// only once the server confirms, so the cart can never show stock the
// backend refused. Quantity and lens updates are optimistic: the
// reducer transition applies immediately and the server write fires in
// the background; a failed write is reported but never rolled back.
type Synchronizer struct {
	api      API
	sessions Sessions
	notifier notify.Notifier
	log      *zap.Logger

	mu    sync.Mutex
	state State

	wg sync.WaitGroup // in-flight background writes
}

// NewSynchronizer constructs a cart synchronizer with an empty local
// state; call Resync or Run to populate it.
func NewSynchronizer(api API, sessions Sessions, notifier notify.Notifier, log *zap.Logger) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{api: api, sessions: sessions, notifier: notifier, log: log}
}

// Lines returns a copy of the current cart lines.
func (s *Synchronizer) Lines() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CartLine(nil), s.state.Lines...)
}

// CartTotal is the current cart total, lens surcharges included.
func (s *Synchronizer) CartTotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CartTotal()
}

// LensTotal is the lens surcharge portion of the cart total.
func (s *Synchronizer) LensTotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LensTotal()
}

// ItemCount is the total number of units in the cart.
func (s *Synchronizer) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ItemCount()
}

// Add puts qty units of a product in the cart, merging into an existing
// line. Server-first: the local line appears only after the server
// accepted the add. Requires an authenticated session.
func (s *Synchronizer) Add(ctx context.Context, product model.ProductRef, qty int) error {
	if err := s.requireSession("Couldn't add to cart"); err != nil {
		return err
	}
	if qty < 1 {
		qty = 1
	}

	// seed the default lens only for a brand-new eyewear line
	var lens *model.LensOption
	s.mu.Lock()
	_, exists := s.state.find(product.ID)
	s.mu.Unlock()
	if !exists && product.Category == model.CategoryEyewear {
		def := model.DefaultLensOption()
		lens = &def
	}

	if err := s.api.AddCartItem(ctx, product.ID, qty, lens); err != nil {
		return s.fail(ctx, "Couldn't add to cart", err)
	}

	s.apply(AddItem{Product: product, Quantity: qty, Lens: lens, At: time.Now()})
	s.notifier.Info("Added to cart", product.Name)
	return nil
}

// Remove drops a product from the cart. Server-first.
func (s *Synchronizer) Remove(ctx context.Context, productID string) error {
	if err := s.requireSession("Couldn't remove item"); err != nil {
		return err
	}
	if err := s.api.RemoveCartItem(ctx, productID); err != nil {
		return s.fail(ctx, "Couldn't remove item", err)
	}
	s.apply(RemoveItem{ProductID: productID})
	return nil
}

// SetQuantity changes a line's quantity. Values below 1 route to
// Remove. The local change is optimistic: it applies immediately and
// the server write runs in the background; a failure is reported but
// the local value stands until the next resync.
func (s *Synchronizer) SetQuantity(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return s.Remove(ctx, productID)
	}
	if err := s.requireSession("Couldn't update quantity"); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.state.find(productID); !ok {
		s.mu.Unlock()
		return nil
	}
	s.state = Reduce(s.state, UpdateQuantity{ProductID: productID, Quantity: qty})
	s.mu.Unlock()

	s.flushAsync(ctx, productID, "Quantity not saved")
	return nil
}

// SetLensOption changes or clears the lens selection of an eyewear
// line. Optimistic, like SetQuantity.
func (s *Synchronizer) SetLensOption(ctx context.Context, productID string, lens *model.LensOption) error {
	if err := s.requireSession("Couldn't update lenses"); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.state.find(productID); !ok {
		s.mu.Unlock()
		return nil
	}
	s.state = Reduce(s.state, UpdateLensOption{ProductID: productID, Lens: lens})
	s.mu.Unlock()

	s.flushAsync(ctx, productID, "Lens selection not saved")
	return nil
}

// Clear empties the cart. Server-first.
func (s *Synchronizer) Clear(ctx context.Context) error {
	if err := s.requireSession("Couldn't clear cart"); err != nil {
		return err
	}
	if err := s.api.ClearCart(ctx); err != nil {
		return s.fail(ctx, "Couldn't clear cart", err)
	}
	s.apply(ClearCart{})
	return nil
}

// Resync discards local state and rebuilds it from the server's
// authoritative cart, replaying the fetched lines through the reducer.
// Idempotent full replace: local state can never permanently diverge
// from the server even after missed events.
func (s *Synchronizer) Resync(ctx context.Context) error {
	if s.sessions.Session().Status != model.StatusAuthenticated {
		s.apply(ClearCart{})
		return nil
	}
	lines, err := s.api.FetchCart(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrAuthExpired) {
			s.sessions.Expire(ctx)
			return err
		}
		s.log.Warn("cart resync failed", zap.Error(err))
		return err
	}

	next := State{}
	for _, l := range lines {
		next = Reduce(next, AddItem{Product: l.Product, Quantity: l.Quantity, At: l.AddedAt})
		if l.LensOption != nil {
			next = Reduce(next, UpdateLensOption{ProductID: l.Product.ID, Lens: l.LensOption})
		}
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.log.Debug("cart resynced", zap.Int("lines", len(next.Lines)))
	return nil
}

// Run resyncs on every session change (login, logout, token rotation)
// until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) {
	for range s.sessions.Subscribe(ctx) {
		if err := s.Resync(ctx); err != nil {
			s.log.Warn("resync on session change", zap.Error(err))
		}
	}
}

// Wait blocks until in-flight background writes finish. Test hook.
func (s *Synchronizer) Wait() { s.wg.Wait() }

func (s *Synchronizer) apply(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	s.mu.Unlock()
}

// flushAsync pushes a line's current quantity and lens selection to the
// server without blocking the caller. The request keeps running if the
// caller's ctx is canceled; failures are reported once, never rolled
// back: the next resync reconciles.
func (s *Synchronizer) flushAsync(ctx context.Context, productID, title string) {
	s.mu.Lock()
	line, ok := s.state.find(productID)
	s.mu.Unlock()
	if !ok {
		return
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.api.UpdateCartItem(bg, productID, line.Quantity, line.LensOption); err != nil {
			s.log.Warn("background cart update failed",
				zap.String("product", productID),
				zap.Error(err),
			)
			_ = s.fail(bg, title, err)
		}
	}()
}

// requireSession rejects mutations without an authenticated session.
func (s *Synchronizer) requireSession(title string) error {
	if s.sessions.Session().Status != model.StatusAuthenticated {
		s.notifier.Error(title, "Log in to manage your cart.")
		return errs.ErrLoginRequired
	}
	return nil
}

// fail maps an operation failure to exactly one user notification.
// Session expiry delegates to the manager, which notifies once itself.
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
