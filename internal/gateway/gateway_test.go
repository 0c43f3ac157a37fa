package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenscart/lenscart/internal/credstore"
	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/model"
)

func storeWith(t *testing.T, access, refresh string) *credstore.Memory {
	t.Helper()
	st := credstore.NewMemory()
	err := st.Save(context.Background(), credstore.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		Profile:      &model.UserProfile{ID: "u1", Email: "a@b.c", Role: model.RoleCustomer},
	})
	require.NoError(t, err)
	return st
}

func TestClient_AttachesBearerAndRequestID(t *testing.T) {
	t.Parallel()

	var gotAuth, gotRID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRID = r.Header.Get("X-Request-ID")
		_ = json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, srv.Client(), st, nil)
	require.NoError(t, err)

	_, err = c.FetchCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok1", gotAuth)
	assert.NotEmpty(t, gotRID)
}

func TestClient_RefreshAndReplayOnce(t *testing.T) {
	t.Parallel()

	var refreshCalls, cartCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh"] != "ref1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "tok2", "refresh": "ref2"})
	})
	mux.HandleFunc("/cart/", func(w http.ResponseWriter, r *http.Request) {
		cartCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]any{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, srv.Client(), st, nil)
	require.NoError(t, err)

	lines, err := c.FetchCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, int32(1), refreshCalls.Load(), "exactly one refresh")
	assert.Equal(t, int32(2), cartCalls.Load(), "original + one replay")

	creds, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", creds.AccessToken)
	assert.Equal(t, "ref2", creds.RefreshToken)
	assert.NotNil(t, creds.Profile, "profile survives rotation")
}

func TestClient_RefreshFailureSurfacesAuthExpired(t *testing.T) {
	t.Parallel()

	var refreshCalls, cartCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/cart/", func(w http.ResponseWriter, r *http.Request) {
		cartCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, srv.Client(), st, nil)
	require.NoError(t, err)

	_, err = c.FetchCart(context.Background())
	require.ErrorIs(t, err, errs.ErrAuthExpired)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(1), cartCalls.Load(), "no second replay after failed refresh")
}

func TestClient_BusinessErrorMapsToServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "out_of_stock",
			"message": "only 2 left in stock",
		})
	}))
	defer srv.Close()

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, srv.Client(), st, nil)
	require.NoError(t, err)

	err = c.AddCartItem(context.Background(), "p1", 5, nil)
	var se *errs.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "out_of_stock", se.Code)
	assert.Equal(t, http.StatusConflict, se.Status)
}

func TestClient_TransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, nil, st, nil)
	require.NoError(t, err)

	_, err = c.FetchCart(context.Background())
	require.ErrorIs(t, err, errs.ErrNetwork)
}

func TestClient_RejectsMalformedCartPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// product without an id must be rejected at the boundary
		_, _ = w.Write([]byte(`[{"product":{"name":"?"},"quantity":1}]`))
	}))
	defer srv.Close()

	st := storeWith(t, "tok1", "ref1")
	c, err := New(srv.URL, srv.Client(), st, nil)
	require.NoError(t, err)

	_, err = c.FetchCart(context.Background())
	require.ErrorIs(t, err, errs.ErrNetwork)
}

func TestClient_LoginValidatesAuthPayload(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"complete", `{"access":"a","refresh":"r","user":{"id":"u1","email":"a@b.c","role":"customer"}}`, true},
		{"missing tokens", `{"user":{"id":"u1","email":"a@b.c"}}`, false},
		{"missing profile id", `{"access":"a","refresh":"r","user":{"email":"a@b.c"}}`, false},
		{"unknown role", `{"access":"a","refresh":"r","user":{"id":"u1","email":"a@b.c","role":"root"}}`, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := New(srv.URL, srv.Client(), credstore.NewMemory(), nil)
			require.NoError(t, err)

			auth, err := c.Login(context.Background(), "a@b.c", "pw")
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", auth.User.ID)
			assert.Equal(t, model.RoleCustomer, auth.User.Role)
		})
	}
}

func TestClient_NoRefreshForAnonymousEndpoints(t *testing.T) {
	t.Parallel()

	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad credentials"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, srv.Client(), credstore.NewMemory(), nil)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@b.c", "wrong")
	var se *errs.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad credentials", se.Message)
	assert.False(t, errors.Is(err, errs.ErrAuthExpired))
	assert.Equal(t, int32(0), refreshCalls.Load(), "login 401 must not trigger refresh")
}
