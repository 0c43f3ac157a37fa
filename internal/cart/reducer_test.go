package cart

import (
	"testing"
	"time"

	"github.com/lenscart/lenscart/internal/model"
)

var (
	frames = model.ProductRef{ID: "p1", Name: "Aviator", Price: 120, Category: model.CategoryEyewear}
	drops  = model.ProductRef{ID: "p2", Name: "Eye Drops", Price: 8, Category: model.CategoryAccessory}
)

func TestReduce_AddMergesSameProduct(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 1})
	s = Reduce(s, AddItem{Product: frames, Quantity: 2})

	if len(s.Lines) != 1 {
		t.Fatalf("want one merged line, got %d", len(s.Lines))
	}
	if s.Lines[0].Quantity != 3 {
		t.Fatalf("want quantity 3, got %d", s.Lines[0].Quantity)
	}
}

func TestReduce_UniquenessAcrossTransitions(t *testing.T) {
	t.Parallel()

	s := State{}
	for _, a := range []Action{
		AddItem{Product: frames, Quantity: 1},
		AddItem{Product: drops, Quantity: 2},
		AddItem{Product: frames, Quantity: 1},
		UpdateQuantity{ProductID: "p2", Quantity: 5},
		AddItem{Product: drops, Quantity: 1},
	} {
		s = Reduce(s, a)
		seen := map[string]bool{}
		for _, l := range s.Lines {
			if seen[l.Product.ID] {
				t.Fatalf("duplicate line for %s after %T", l.Product.ID, a)
			}
			seen[l.Product.ID] = true
		}
	}
}

func TestReduce_EyewearSeedsDefaultLens(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 1})
	lens := s.Lines[0].LensOption
	if lens == nil {
		t.Fatal("eyewear line must carry a lens option")
	}
	if lens.Type != model.LensStandard || lens.Option != "Basic" || lens.Price != 0 {
		t.Fatalf("want default standard/Basic/0 lens, got %+v", lens)
	}

	s = Reduce(State{}, AddItem{Product: drops, Quantity: 1})
	if s.Lines[0].LensOption != nil {
		t.Fatalf("non-eyewear line must not carry a lens option")
	}
}

func TestReduce_UpdateQuantityEnforcesMinimum(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 2})
	for _, qty := range []int{0, -1, -100} {
		next := Reduce(s, UpdateQuantity{ProductID: "p1", Quantity: qty})
		if next.Lines[0].Quantity != 2 {
			t.Fatalf("quantity %d must leave state unchanged, got %d", qty, next.Lines[0].Quantity)
		}
	}

	s = Reduce(s, UpdateQuantity{ProductID: "p1", Quantity: 7})
	if s.Lines[0].Quantity != 7 {
		t.Fatalf("want 7, got %d", s.Lines[0].Quantity)
	}
}

func TestReduce_RemoveAndUnknownIDs(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 1})
	s = Reduce(s, AddItem{Product: drops, Quantity: 1})

	s = Reduce(s, RemoveItem{ProductID: "p1"})
	if len(s.Lines) != 1 || s.Lines[0].Product.ID != "p2" {
		t.Fatalf("unexpected lines after remove: %+v", s.Lines)
	}

	// unknown ids are no-ops
	s = Reduce(s, RemoveItem{ProductID: "ghost"})
	s = Reduce(s, UpdateQuantity{ProductID: "ghost", Quantity: 3})
	if len(s.Lines) != 1 || s.Lines[0].Quantity != 1 {
		t.Fatalf("unknown ids must not change state: %+v", s.Lines)
	}
}

func TestReduce_ClearIsIdempotent(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 1})
	once := Reduce(s, ClearCart{})
	twice := Reduce(once, ClearCart{})

	if len(once.Lines) != 0 || len(twice.Lines) != 0 {
		t.Fatalf("clear must empty the cart: %d/%d", len(once.Lines), len(twice.Lines))
	}
}

func TestReduce_LensMergeAndClear(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 1})

	s = Reduce(s, UpdateLensOption{ProductID: "p1", Lens: &model.LensOption{
		Type:           model.LensPrescription,
		Option:         "Single Vision",
		Price:          45,
		PrescriptionID: "rx-9",
	}})
	lens := s.Lines[0].LensOption
	if lens.Type != model.LensPrescription || lens.Option != "Single Vision" || lens.Price != 45 || lens.PrescriptionID != "rx-9" {
		t.Fatalf("merge mismatch: %+v", lens)
	}

	// partial update: new tier resets the price, keeps the rest merged
	s = Reduce(s, UpdateLensOption{ProductID: "p1", Lens: &model.LensOption{Option: "Blue Light"}})
	lens = s.Lines[0].LensOption
	if lens.Type != model.LensPrescription || lens.Option != "Blue Light" || lens.Price != 0 {
		t.Fatalf("partial merge mismatch: %+v", lens)
	}

	// switching back to standard drops the prescription reference
	s = Reduce(s, UpdateLensOption{ProductID: "p1", Lens: &model.LensOption{Type: model.LensStandard, Option: "Basic"}})
	lens = s.Lines[0].LensOption
	if lens.PrescriptionID != "" {
		t.Fatalf("standard lens must not reference a prescription: %+v", lens)
	}

	s = Reduce(s, UpdateLensOption{ProductID: "p1", Lens: nil})
	if s.Lines[0].LensOption != nil {
		t.Fatalf("nil update must clear the selection")
	}
}

func TestState_DerivedTotals(t *testing.T) {
	t.Parallel()

	s := Reduce(State{}, AddItem{Product: frames, Quantity: 2, At: time.Now()})
	s = Reduce(s, UpdateLensOption{ProductID: "p1", Lens: &model.LensOption{
		Type: model.LensPrescription, Option: "Single Vision", Price: 45,
	}})
	s = Reduce(s, AddItem{Product: drops, Quantity: 3})

	if got, want := s.ItemCount(), 5; got != want {
		t.Fatalf("ItemCount: got %d want %d", got, want)
	}
	if got, want := s.LensTotal(), 90.0; got != want {
		t.Fatalf("LensTotal: got %v want %v", got, want)
	}
	// 2*120 + 2*45 + 3*8
	if got, want := s.CartTotal(), 354.0; got != want {
		t.Fatalf("CartTotal: got %v want %v", got, want)
	}
}

func TestReduce_IsPure(t *testing.T) {
	t.Parallel()

	orig := Reduce(State{}, AddItem{Product: frames, Quantity: 1})
	_ = Reduce(orig, UpdateQuantity{ProductID: "p1", Quantity: 9})
	_ = Reduce(orig, RemoveItem{ProductID: "p1"})

	if orig.Lines[0].Quantity != 1 || len(orig.Lines) != 1 {
		t.Fatalf("input state was mutated: %+v", orig.Lines)
	}
}
