package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kmorozov/subctl/internal/tokenstore"
	"github.com/kmorozov/subctl/pkg/logging"
	"github.com/kmorozov/subctl/pkg/tokens"
)

var testSecret = []byte("apiclient-test-secret")

func newTestStore(t *testing.T) *tokenstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := tokenstore.New(db)
	require.NoError(t, err)
	return store
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *tokenstore.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := newTestStore(t)
	c := New(srv.URL, store, logging.New(io.Discard, "error"), 5*time.Second)
	return c, store
}

func signAccess(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := tokens.SignAccess(1, "alice", exp, testSecret)
	require.NoError(t, err)
	return token
}

func TestLogin_StoresTokenPair(t *testing.T) {
	t.Parallel()

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/token/", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "alice", creds["username"])
		require.Equal(t, "secret", creds["password"])

		json.NewEncoder(w).Encode(map[string]string{"access": "acc", "refresh": "ref"})
	}))

	pair, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, tokenstore.Pair{Access: "acc", Refresh: "ref"}, pair)

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, pair, stored)
}

func TestLogin_LegacySingleTokenResponse(t *testing.T) {
	t.Parallel()

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "legacy-token"})
	}))

	pair, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", pair.Access)
	assert.Empty(t, pair.Refresh)

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", stored.Access)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid username or password"})
	}))

	_, err := c.Login(context.Background(), "alice", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid username or password", apiErr.Message)

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, tokenstore.Pair{}, stored)
}

func TestDo_FreshTokenForwardedWithoutRefresh(t *testing.T) {
	t.Parallel()

	fresh := signAccess(t, time.Now().Add(10*time.Minute))
	refreshCalls := 0

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			refreshCalls++
			return
		}
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "alice"})
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: fresh, Refresh: "ref"}))

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Zero(t, refreshCalls)
}

func TestDo_ExpiredTokenRefreshedBeforeDispatch(t *testing.T) {
	t.Parallel()

	stale := signAccess(t, time.Now().Add(-10*time.Second))
	fresh := signAccess(t, time.Now().Add(15*time.Minute))
	refreshCalls := 0

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token/refresh/":
			refreshCalls++
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "valid-refresh", body["refresh"])
			assert.Empty(t, r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"access": fresh})
		case "/api/user/":
			assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "alice"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: stale, Refresh: "valid-refresh"}))

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 1, refreshCalls)

	// Old access token is replaced wholesale in the store.
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, fresh, stored.Access)
	assert.Equal(t, "valid-refresh", stored.Refresh)
}

func TestDo_ExpiredTokenWithoutRefreshForwardedStale(t *testing.T) {
	t.Parallel()

	stale := signAccess(t, time.Now().Add(-time.Hour))
	refreshCalls := 0

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			refreshCalls++
			return
		}
		assert.Equal(t, "Bearer "+stale, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "token expired"})
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: stale}))

	_, err := c.CurrentUser(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, refreshCalls)
}

func TestDo_RefreshFailureAbortsRequest(t *testing.T) {
	t.Parallel()

	stale := signAccess(t, time.Now().Add(-time.Minute))
	apiCalls := 0

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "refresh expired"})
			return
		}
		apiCalls++
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: stale, Refresh: "dead-refresh"}))

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.Zero(t, apiCalls, "original request must not reach the backend")
}

func TestRefresh_NoSession(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestUploadPayment_MultipartShape(t *testing.T) {
	t.Parallel()

	fresh := signAccess(t, time.Now().Add(time.Minute))

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/payments/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "3", r.FormValue("plan"))

		file, header, err := r.FormFile("payment_proof")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "receipt.png", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "fake-image-bytes", string(data))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 9, "plan": 3, "is_verified": false})
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: fresh}))

	payment, err := c.UploadPayment(context.Background(), 3, "receipt.png", strings.NewReader("fake-image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, uint(9), payment.ID)
	assert.False(t, payment.IsVerified)
}

func TestErrorMessage_Passthrough(t *testing.T) {
	t.Parallel()

	fresh := signAccess(t, time.Now().Add(time.Minute))

	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "You already have an active subscription."})
	}))
	require.NoError(t, store.Save(tokenstore.Pair{Access: fresh}))

	_, err := c.Purchase(context.Background(), 3)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "You already have an active subscription.", apiErr.Message)
}
