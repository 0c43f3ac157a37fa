package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/model"
)

// Auth is a successful authentication result: the issued token pair
// plus the account profile.
type Auth struct {
	AccessToken  string
	RefreshToken string
	User         model.UserProfile
}

// profilePayload is the single schema accepted for a user profile.
// Malformed payloads are rejected at this boundary instead of leaking
// optional fields into client state.
type profilePayload struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
	Address string     `json:"address"`
	Phone   string     `json:"phone"`
}

func (p profilePayload) validate() (model.UserProfile, error) {
	if p.ID == "" || p.Email == "" {
		return model.UserProfile{}, fmt.Errorf("%w: profile missing id/email", errs.ErrNetwork)
	}
	role := p.Role
	if role == "" {
		role = model.RoleCustomer
	}
	if !role.Valid() {
		return model.UserProfile{}, fmt.Errorf("%w: unknown role %q", errs.ErrNetwork, p.Role)
	}
	return model.UserProfile{
		ID:      p.ID,
		Name:    p.Name,
		Email:   p.Email,
		Role:    role,
		Address: p.Address,
		Phone:   p.Phone,
	}, nil
}

type authPayload struct {
	Access  string         `json:"access"`
	Refresh string         `json:"refresh"`
	User    profilePayload `json:"user"`
}

func (p authPayload) validate() (Auth, error) {
	if p.Access == "" || p.Refresh == "" {
		return Auth{}, fmt.Errorf("%w: auth response missing tokens", errs.ErrNetwork)
	}
	user, err := p.User.validate()
	if err != nil {
		return Auth{}, err
	}
	return Auth{AccessToken: p.Access, RefreshToken: p.Refresh, User: user}, nil
}

type productPayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Price    float64        `json:"price"`
	Category model.Category `json:"category"`
}

func (p productPayload) validate() (model.ProductRef, error) {
	if p.ID == "" {
		return model.ProductRef{}, fmt.Errorf("%w: product missing id", errs.ErrNetwork)
	}
	return model.ProductRef{ID: p.ID, Name: p.Name, Price: p.Price, Category: p.Category}, nil
}

type lensPayload struct {
	Type           model.LensOptionType `json:"type"`
	Option         string               `json:"option"`
	Price          float64              `json:"price"`
	PrescriptionID string               `json:"prescription_id"`
}

func (p *lensPayload) validate() (*model.LensOption, error) {
	if p == nil {
		return nil, nil
	}
	if p.Type != model.LensStandard && p.Type != model.LensPrescription {
		return nil, fmt.Errorf("%w: unknown lens type %q", errs.ErrNetwork, p.Type)
	}
	return &model.LensOption{
		Type:           p.Type,
		Option:         p.Option,
		Price:          p.Price,
		PrescriptionID: p.PrescriptionID,
	}, nil
}

type cartLinePayload struct {
	Product    productPayload `json:"product"`
	Quantity   int            `json:"quantity"`
	LensOption *lensPayload   `json:"lens_option"`
	AddedAt    time.Time      `json:"added_at"`
}

func (p cartLinePayload) validate() (model.CartLine, error) {
	product, err := p.Product.validate()
	if err != nil {
		return model.CartLine{}, err
	}
	if p.Quantity < 1 {
		return model.CartLine{}, fmt.Errorf("%w: cart line %s has quantity %d", errs.ErrNetwork, product.ID, p.Quantity)
	}
	lens, err := p.LensOption.validate()
	if err != nil {
		return model.CartLine{}, err
	}
	return model.CartLine{Product: product, Quantity: p.Quantity, LensOption: lens, AddedAt: p.AddedAt}, nil
}

type wishlistEntryPayload struct {
	Product productPayload `json:"product"`
	AddedAt time.Time      `json:"added_at"`
}

// ---- auth ----

// Login exchanges email/password for a token pair and profile.
func (c *Client) Login(ctx context.Context, email, password string) (Auth, error) {
	var p authPayload
	err := c.do(ctx, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, &p, false)
	if err != nil {
		return Auth{}, err
	}
	return p.validate()
}

// Register submits a new account; authentication only happens after the
// one-time code is verified.
func (c *Client) Register(ctx context.Context, name, email, password string, role model.Role) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	if role != "" {
		body["role"] = string(role)
	}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil, false)
}

// VerifyOTP completes registration and authenticates.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (Auth, error) {
	var p authPayload
	err := c.do(ctx, http.MethodPost, "/auth/verify-otp",
		map[string]string{"email": email, "otp": code}, &p, false)
	if err != nil {
		return Auth{}, err
	}
	return p.validate()
}

// ResendOTP requests a fresh registration code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/resend-otp",
		map[string]string{"email": email}, nil, false)
}

// VerifyToken checks the stored access token against the server.
func (c *Client) VerifyToken(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/verify-token", nil, nil, true)
}

// SendResetCode starts the password-reset flow.
func (c *Client) SendResetCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password/send-otp",
		map[string]string{"email": email}, nil, false)
}

// VerifyResetCode checks a password-reset code.
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password/verify-otp",
		map[string]string{"email": email, "otp": code}, nil, false)
}

// ResetPassword completes the password-reset flow.
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password/reset",
		map[string]string{"email": email, "otp": code, "password": newPassword}, nil, false)
}

// ---- profile ----

// Profile fetches the current account profile.
func (c *Client) Profile(ctx context.Context) (model.UserProfile, error) {
	var p profilePayload
	if err := c.do(ctx, http.MethodGet, "/profile/", nil, &p, true); err != nil {
		return model.UserProfile{}, err
	}
	return p.validate()
}

// UpdateProfile patches profile fields and returns the updated profile.
// Only non-empty fields of partial are sent.
func (c *Client) UpdateProfile(ctx context.Context, partial map[string]string) (model.UserProfile, error) {
	var p profilePayload
	if err := c.do(ctx, http.MethodPatch, "/profile/", partial, &p, true); err != nil {
		return model.UserProfile{}, err
	}
	return p.validate()
}

// ChangePassword rotates the account password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, http.MethodPost, "/profile/change-password/",
		map[string]string{"current_password": current, "new_password": next}, nil, true)
}

// ---- cart ----

// FetchCart returns the server's authoritative cart.
func (c *Client) FetchCart(ctx context.Context) ([]model.CartLine, error) {
	var items []cartLinePayload
	if err := c.do(ctx, http.MethodGet, "/cart/", nil, &items, true); err != nil {
		return nil, err
	}
	lines := make([]model.CartLine, 0, len(items))
	for _, it := range items {
		line, err := it.validate()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// AddCartItem adds (or merges) a product server-side.
func (c *Client) AddCartItem(ctx context.Context, productID string, qty int, lens *model.LensOption) error {
	body := map[string]any{"product_id": productID, "quantity": qty}
	if lens != nil {
		body["lens_option"] = lens
	}
	return c.do(ctx, http.MethodPost, "/cart/", body, nil, true)
}

// UpdateCartItem patches quantity and/or lens option of a cart line.
func (c *Client) UpdateCartItem(ctx context.Context, productID string, qty int, lens *model.LensOption) error {
	body := map[string]any{"quantity": qty}
	if lens != nil {
		body["lens_option"] = lens
	}
	path := fmt.Sprintf("/cart/%s/update/", url.PathEscape(productID))
	return c.do(ctx, http.MethodPatch, path, body, nil, true)
}

// RemoveCartItem deletes one cart line.
func (c *Client) RemoveCartItem(ctx context.Context, productID string) error {
	path := fmt.Sprintf("/cart/%s/", url.PathEscape(productID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

// ClearCart deletes the whole cart.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart/", nil, nil, true)
}

// ---- wishlist ----

// FetchWishlist returns the server's authoritative wishlist.
func (c *Client) FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	var items []wishlistEntryPayload
	if err := c.do(ctx, http.MethodGet, "/wishlist/", nil, &items, true); err != nil {
		return nil, err
	}
	entries := make([]model.WishlistEntry, 0, len(items))
	for _, it := range items {
		product, err := it.Product.validate()
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.WishlistEntry{Product: product, AddedAt: it.AddedAt})
	}
	return entries, nil
}

// AddWishlistItem saves a product server-side.
func (c *Client) AddWishlistItem(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodPost, "/wishlist/",
		map[string]string{"product_id": productID}, nil, true)
}

// RemoveWishlistItem deletes one wishlist entry.
func (c *Client) RemoveWishlistItem(ctx context.Context, productID string) error {
	path := fmt.Sprintf("/wishlist/%s/", url.PathEscape(productID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

// ClearWishlist deletes the whole wishlist.
func (c *Client) ClearWishlist(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/wishlist/", nil, nil, true)
}
