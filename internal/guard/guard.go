// Package guard decides whether a navigation target may render given
// the current session and role state.
package guard

import (
	"net/url"
	"sync"

	"github.com/lenscart/lenscart/internal/model"
	"github.com/lenscart/lenscart/internal/notify"
)

// LoginPath is the surface anonymous users are sent to. The original
// target travels along so navigation can resume after authentication.
const LoginPath = "/login"

// Outcome is the guard's verdict for a navigation target.
type Outcome int

const (
	// OutcomeWait means the session is still initializing; render a
	// neutral loading state and decide nothing yet.
	OutcomeWait Outcome = iota
	// OutcomeRender allows the target to render.
	OutcomeRender
	// OutcomeRedirectLogin sends an anonymous user to the login surface.
	OutcomeRedirectLogin
	// OutcomeRedirectHome sends an authorized-but-wrong-role user to
	// their role's home surface.
	OutcomeRedirectHome
)

// Decision pairs an outcome with its redirect location, when any.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Denied reports whether the decision is a denial redirect.
func (d Decision) Denied() bool {
	return d.Outcome == OutcomeRedirectLogin || d.Outcome == OutcomeRedirectHome
}

// Rule is a navigation target's authorization requirement.
type Rule struct {
	// AllowedRoles whitelists roles; empty allows any authenticated one.
	AllowedRoles []model.Role
	// CustomersOnly restricts the target to the customer role.
	CustomersOnly bool
}

// HomeFor returns the designated home surface for a role.
func HomeFor(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return "/admin"
	case model.RoleDoctor:
		return "/doctor"
	case model.RoleDelivery:
		return "/delivery"
	case model.RoleManufacturer:
		return "/manufacturer"
	default:
		return "/"
	}
}

// Decide is a pure function of the (status, role, rule, target) tuple.
func Decide(status model.Status, role model.Role, rule Rule, target string) Decision {
	switch status {
	case model.StatusInitializing:
		return Decision{Outcome: OutcomeWait}
	case model.StatusAnonymous:
		loc := LoginPath
		if target != "" {
			loc += "?next=" + url.QueryEscape(target)
		}
		return Decision{Outcome: OutcomeRedirectLogin, Location: loc}
	}

	if !allowed(role, rule) {
		home := HomeFor(role)
		if target == home {
			// already on the fallback surface: render to avoid a loop
			return Decision{Outcome: OutcomeRender}
		}
		return Decision{Outcome: OutcomeRedirectHome, Location: home}
	}
	return Decision{Outcome: OutcomeRender}
}

func allowed(role model.Role, rule Rule) bool {
	if rule.CustomersOnly && role != model.RoleCustomer {
		return false
	}
	if len(rule.AllowedRoles) == 0 {
		return true
	}
	for _, r := range rule.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Sessions is the read-only session view the guard consumes.
type Sessions interface {
	Session() model.Session
}

// Guard evaluates one mounted navigation target. Denials notify the
// user at most once per mount, however often Evaluate re-runs.
type Guard struct {
	sessions Sessions
	notifier notify.Notifier

	mu       sync.Mutex
	notified bool
}

// New constructs a Guard for one mount.
func New(sessions Sessions, notifier notify.Notifier) *Guard {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Guard{sessions: sessions, notifier: notifier}
}

// Evaluate decides the target against the current session.
func (g *Guard) Evaluate(rule Rule, target string) Decision {
	s := g.sessions.Session()
	var role model.Role
	if s.User != nil {
		role = s.User.Role
	}
	d := Decide(s.Status, role, rule, target)
	if d.Denied() {
		g.mu.Lock()
		first := !g.notified
		g.notified = true
		g.mu.Unlock()
		if first {
			if d.Outcome == OutcomeRedirectLogin {
				g.notifier.Error("Login required", "Please log in to continue.")
			} else {
				g.notifier.Error("Not allowed", "You don't have access to that page.")
			}
		}
	}
	return d
}
