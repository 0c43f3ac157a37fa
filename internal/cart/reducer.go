// Package cart keeps a local cart mirrored against the server cart.
//
// All local transitions go through a pure reducer; a thin orchestration
// layer (Synchronizer) issues the matching network calls and reconciles
// failures. Centralizing mutation in the reducer keeps the optimistic
// update bookkeeping in one place.
package cart

import (
	"time"

	"github.com/lenscart/lenscart/internal/model"
)

// State is the local cart line list. Values are treated as immutable:
// Reduce returns a fresh State and never aliases mutable data with its
// input.
type State struct {
	Lines []model.CartLine
}

// Action is a cart transition applied by Reduce.
type Action interface{ isAction() }

// AddItem appends a new line or merges into an existing one.
type AddItem struct {
	Product  model.ProductRef
	Quantity int
	Lens     *model.LensOption // optional; eyewear defaults are seeded
	At       time.Time
}

// RemoveItem drops the line for a product.
type RemoveItem struct{ ProductID string }

// UpdateQuantity replaces a line's quantity in place.
type UpdateQuantity struct {
	ProductID string
	Quantity  int
}

// UpdateLensOption merges fields into a line's lens option, or clears
// it when Lens is nil.
type UpdateLensOption struct {
	ProductID string
	Lens      *model.LensOption
}

// ClearCart empties the collection.
type ClearCart struct{}

func (AddItem) isAction()          {}
func (RemoveItem) isAction()       {}
func (UpdateQuantity) isAction()   {}
func (UpdateLensOption) isAction() {}
func (ClearCart) isAction()        {}

// Reduce applies one transition. It is pure and synchronous: no side
// effects, no network. Invariants it maintains:
//   - at most one line per product ID (merge-on-add, never duplicate)
//   - every line has quantity >= 1; transitions that would violate this
//     leave the state unchanged
//   - an eyewear line always carries a lens option, seeded with the
//     zero-cost standard one when none is given
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case AddItem:
		return reduceAdd(s, act)
	case RemoveItem:
		out := State{Lines: make([]model.CartLine, 0, len(s.Lines))}
		for _, l := range s.Lines {
			if l.Product.ID != act.ProductID {
				out.Lines = append(out.Lines, l)
			}
		}
		return out
	case UpdateQuantity:
		if act.Quantity < 1 {
			return s
		}
		return mapLine(s, act.ProductID, func(l model.CartLine) model.CartLine {
			l.Quantity = act.Quantity
			return l
		})
	case UpdateLensOption:
		return mapLine(s, act.ProductID, func(l model.CartLine) model.CartLine {
			l.LensOption = mergeLens(l.LensOption, act.Lens)
			return l
		})
	case ClearCart:
		return State{}
	}
	return s
}

func reduceAdd(s State, act AddItem) State {
	if act.Quantity < 1 || act.Product.ID == "" {
		return s
	}
	merged := false
	out := State{Lines: make([]model.CartLine, 0, len(s.Lines)+1)}
	for _, l := range s.Lines {
		if l.Product.ID == act.Product.ID {
			l.Quantity += act.Quantity
			merged = true
		}
		out.Lines = append(out.Lines, l)
	}
	if merged {
		return out
	}

	line := model.CartLine{
		Product:  act.Product,
		Quantity: act.Quantity,
		AddedAt:  act.At,
	}
	if act.Lens != nil {
		lens := *act.Lens
		line.LensOption = &lens
	} else if act.Product.Category == model.CategoryEyewear {
		lens := model.DefaultLensOption()
		line.LensOption = &lens
	}
	out.Lines = append(out.Lines, line)
	return out
}

// mapLine rebuilds the line list applying fn to the matching line.
// Unknown product IDs leave the state unchanged.
func mapLine(s State, productID string, fn func(model.CartLine) model.CartLine) State {
	out := State{Lines: make([]model.CartLine, 0, len(s.Lines))}
	for _, l := range s.Lines {
		if l.Product.ID == productID {
			l = fn(l)
		}
		out.Lines = append(out.Lines, l)
	}
	return out
}

// mergeLens folds an update into an existing lens option. A nil update
// clears the selection; otherwise non-empty fields overwrite, and the
// price follows whenever a new tier (type or option) was picked.
func mergeLens(cur, upd *model.LensOption) *model.LensOption {
	if upd == nil {
		return nil
	}
	base := model.DefaultLensOption()
	if cur != nil {
		base = *cur
	}
	tierChanged := false
	if upd.Type != "" {
		base.Type = upd.Type
		tierChanged = true
	}
	if upd.Option != "" {
		base.Option = upd.Option
		tierChanged = true
	}
	if tierChanged || upd.Price != 0 {
		base.Price = upd.Price
	}
	if upd.PrescriptionID != "" {
		base.PrescriptionID = upd.PrescriptionID
	}
	if base.Type != model.LensPrescription {
		base.PrescriptionID = ""
	}
	return &base
}

// CartTotal is the sum of product subtotals including lens surcharges.
func (s State) CartTotal() float64 {
	var total float64
	for _, l := range s.Lines {
		total += l.Subtotal()
	}
	return total
}

// LensTotal is the lens surcharge portion of the cart total.
func (s State) LensTotal() float64 {
	var total float64
	for _, l := range s.Lines {
		if l.LensOption != nil {
			total += l.LensOption.Price * float64(l.Quantity)
		}
	}
	return total
}

// ItemCount is the total number of units across all lines.
func (s State) ItemCount() int {
	var n int
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

// find returns the line for a product, if present.
func (s State) find(productID string) (model.CartLine, bool) {
	for _, l := range s.Lines {
		if l.Product.ID == productID {
			return l, true
		}
	}
	return model.CartLine{}, false
}
