// Package model defines domain entities shared across the client core.
package model

import "time"

// Role is the server-assigned account role. It is immutable for the
// lifetime of a session and drives route authorization on the client.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleDelivery     Role = "delivery"
	RoleManufacturer Role = "manufacturer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleDoctor, RoleDelivery, RoleManufacturer:
		return true
	}
	return false
}

// Status describes the client's current belief about authentication.
type Status int

const (
	// StatusInitializing means session restore has not finished yet.
	StatusInitializing Status = iota
	// StatusAuthenticated means both tokens are present and were last
	// verified valid; Session.User is set.
	StatusAuthenticated
	// StatusAnonymous means there is no usable session.
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// UserProfile is the cached server-side account profile.
type UserProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Session is the client-side authentication snapshot. User is non-nil
// iff Status == StatusAuthenticated.
type Session struct {
	Status       Status
	User         *UserProfile
	AccessToken  string
	RefreshToken string
}

// Category tags a product with its catalog section. Only CategoryEyewear
// carries lens options.
type Category string

const (
	CategoryEyewear     Category = "eyewear"
	CategoryContactLens Category = "contact-lens"
	CategoryAccessory   Category = "accessory"
)

// ProductRef is the subset of catalog data a cart line needs to carry.
type ProductRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Category Category `json:"category"`
}

// LensOptionType distinguishes stock lenses from prescription ones.
type LensOptionType string

const (
	LensStandard     LensOptionType = "standard"
	LensPrescription LensOptionType = "prescription"
)

// LensOption is the lens sub-selection attached to an eyewear cart line.
// It travels embedded in its CartLine and is never persisted on its own.
type LensOption struct {
	Type           LensOptionType `json:"type"`
	Option         string         `json:"option"`
	Price          float64        `json:"price"`
	PrescriptionID string         `json:"prescription_id,omitempty"`
}

// DefaultLensOption is the zero-cost selection seeded when an eyewear
// product first enters the cart.
func DefaultLensOption() LensOption {
	return LensOption{Type: LensStandard, Option: "Basic", Price: 0}
}

// CartLine is a single cart position. At most one line exists per
// product ID; repeated adds merge into the quantity.
type CartLine struct {
	Product    ProductRef  `json:"product"`
	Quantity   int         `json:"quantity"`
	LensOption *LensOption `json:"lens_option,omitempty"`
	AddedAt    time.Time   `json:"added_at"`
}

// Subtotal is line price times quantity, lens surcharge included.
func (l CartLine) Subtotal() float64 {
	total := l.Product.Price * float64(l.Quantity)
	if l.LensOption != nil {
		total += l.LensOption.Price * float64(l.Quantity)
	}
	return total
}

// WishlistEntry is a saved product. At most one entry per product ID.
type WishlistEntry struct {
	Product ProductRef `json:"product"`
	AddedAt time.Time  `json:"added_at"`
}
