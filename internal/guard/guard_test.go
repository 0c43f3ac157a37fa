package guard

import (
	"sync"
	"testing"

	"github.com/lenscart/lenscart/internal/model"
	"github.com/lenscart/lenscart/internal/notify"
)

func TestDecide_Table(t *testing.T) {
	t.Parallel()

	staffOnly := Rule{AllowedRoles: []model.Role{model.RoleAdmin, model.RoleDoctor}}
	customersOnly := Rule{CustomersOnly: true}

	cases := []struct {
		name    string
		status  model.Status
		role    model.Role
		rule    Rule
		target  string
		outcome Outcome
		loc     string
	}{
		{"initializing waits", model.StatusInitializing, "", staffOnly, "/orders", OutcomeWait, ""},
		{"anonymous redirects to login with next", model.StatusAnonymous, "", Rule{}, "/checkout", OutcomeRedirectLogin, "/login?next=%2Fcheckout"},
		{"authorized role renders", model.StatusAuthenticated, model.RoleAdmin, staffOnly, "/orders", OutcomeRender, ""},
		{"wrong role redirects home", model.StatusAuthenticated, model.RoleDelivery, staffOnly, "/orders", OutcomeRedirectHome, "/delivery"},
		{"customer-only blocks staff", model.StatusAuthenticated, model.RoleAdmin, customersOnly, "/cart", OutcomeRedirectHome, "/admin"},
		{"customer-only admits customer", model.StatusAuthenticated, model.RoleCustomer, customersOnly, "/cart", OutcomeRender, ""},
		{"empty whitelist admits any role", model.StatusAuthenticated, model.RoleManufacturer, Rule{}, "/account", OutcomeRender, ""},
		{"already home renders to avoid loop", model.StatusAuthenticated, model.RoleDoctor, customersOnly, "/doctor", OutcomeRender, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tc.status, tc.role, tc.rule, tc.target)
			if got.Outcome != tc.outcome || got.Location != tc.loc {
				t.Fatalf("got %+v, want outcome=%v loc=%q", got, tc.outcome, tc.loc)
			}
		})
	}
}

func TestDecide_IsDeterministic(t *testing.T) {
	t.Parallel()

	rule := Rule{AllowedRoles: []model.Role{model.RoleAdmin}}
	first := Decide(model.StatusAuthenticated, model.RoleCustomer, rule, "/admin-panel")
	for i := 0; i < 10; i++ {
		if got := Decide(model.StatusAuthenticated, model.RoleCustomer, rule, "/admin-panel"); got != first {
			t.Fatalf("decision changed between calls: %+v vs %+v", got, first)
		}
	}
}

type staticSessions struct{ s model.Session }

func (f staticSessions) Session() model.Session { return f.s }

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

var _ notify.Notifier = (*countingNotifier)(nil)

func (c *countingNotifier) Info(string, string) {}
func (c *countingNotifier) Error(string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func TestGuard_NotifiesDenialOncePerMount(t *testing.T) {
	t.Parallel()

	n := &countingNotifier{}
	g := New(staticSessions{model.Session{Status: model.StatusAnonymous}}, n)

	rule := Rule{CustomersOnly: true}
	for i := 0; i < 5; i++ {
		d := g.Evaluate(rule, "/cart")
		if d.Outcome != OutcomeRedirectLogin {
			t.Fatalf("want login redirect, got %+v", d)
		}
	}
	if n.n != 1 {
		t.Fatalf("want one notification per mount, got %d", n.n)
	}

	// a fresh mount notifies again
	g2 := New(staticSessions{model.Session{Status: model.StatusAnonymous}}, n)
	_ = g2.Evaluate(rule, "/cart")
	if n.n != 2 {
		t.Fatalf("fresh mount must notify once more, got %d", n.n)
	}
}

func TestGuard_RenderDoesNotNotify(t *testing.T) {
	t.Parallel()

	u := model.UserProfile{ID: "u1", Role: model.RoleCustomer}
	n := &countingNotifier{}
	g := New(staticSessions{model.Session{Status: model.StatusAuthenticated, User: &u}}, n)

	d := g.Evaluate(Rule{CustomersOnly: true}, "/cart")
	if d.Outcome != OutcomeRender || n.n != 0 {
		t.Fatalf("render must be silent: %+v, notifications=%d", d, n.n)
	}
}
