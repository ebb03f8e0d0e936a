package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/httpclient"
	"github.com/trezcool/masomo-portal/services/notify"
	"github.com/trezcool/masomo-portal/storage"
	"github.com/trezcool/masomo-portal/storage/inmem"
)

const (
	goodEmail = "jane@school.test"
	goodPwd   = "Kx9!mQz#Tw4v"
)

// backend scripts the auth endpoints.
type backend struct {
	mu         sync.Mutex
	issued     int
	valid      map[string]bool // access credentials currently accepted
	refreshBad bool
	meStatus   int
	logins     []map[string]interface{}
	registered []map[string]interface{}
}

func (b *backend) newToken() string {
	b.issued++
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Id:        strings.Repeat("x", b.issued),
		ExpiresAt: time.Now().Add(15 * time.Minute).Unix(),
	})
	s, _ := tok.SignedString([]byte("secret"))
	b.valid[s] = true
	return s
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	var payload map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	switch r.URL.Path {
	case "/auth/jwt/create":
		b.logins = append(b.logins, payload)
		if payload["email"] != goodEmail || payload["password"] != goodPwd {
			reply(http.StatusUnauthorized, `{"detail": "No active account found with the given credentials"}`)
			return
		}
		reply(http.StatusOK, `{"access": "`+b.newToken()+`", "refresh": "refresh-1"}`)
	case "/auth/jwt/refresh/":
		if b.refreshBad || payload["refresh"] != "refresh-1" {
			reply(http.StatusUnauthorized, `{"detail": "Token is invalid or expired", "code": "token_not_valid"}`)
			return
		}
		reply(http.StatusOK, `{"access": "`+b.newToken()+`"}`)
	case "/auth/users/me":
		if b.meStatus != 0 {
			reply(b.meStatus, `{"detail": "Server Error"}`)
			return
		}
		if !b.valid[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] {
			reply(http.StatusUnauthorized, `{"detail": "Given token not valid for any token type"}`)
			return
		}
		reply(http.StatusOK, `{"id": 7, "name": "Jane Doe", "email": "`+goodEmail+`", "role": "teacher", "school": 3}`)
	case "/register":
		if payload["email"] == "taken@school.test" {
			reply(http.StatusBadRequest, `{"email": ["user with this email already exists."]}`)
			return
		}
		b.registered = append(b.registered, payload)
		reply(http.StatusCreated, `{"id": 8}`)
	default:
		reply(http.StatusNotFound, `{"detail": "Not found."}`)
	}
}

func setup(t *testing.T) (*Session, *backend, *inmemstore.Store, *notifysvc.Recorder) {
	b := &backend{valid: make(map[string]bool)}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	store := inmemstore.New()
	rec := &notifysvc.Recorder{}
	s := New(Options{
		Client:   httpclient.New(httpclient.Options{BaseURL: srv.URL, Timeout: 5 * time.Second}),
		Store:    store,
		Notifier: rec,
	})
	return s, b, store, rec
}

func TestSession_Login_badCredentials(t *testing.T) {
	s, _, store, _ := setup(t)

	err := s.Login(context.Background(), user.Credentials{Email: "a@b.com", Password: "bad"})
	require.Error(t, err)
	assert.True(t, core.IsUnauthorized(err))

	st := s.Snapshot()
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.Identity)
	assert.Equal(t, map[string][]string{
		core.NonFieldErrorsKey: {"No active account found with the given credentials"},
	}, st.Err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, "", s.AccessToken())
}

func TestSession_Login_invalidDraft(t *testing.T) {
	s, b, _, _ := setup(t)

	err := s.Login(context.Background(), user.Credentials{Email: "not-an-email"})
	require.Error(t, err)
	st := s.Snapshot()
	assert.Contains(t, st.Err, "email")
	assert.Contains(t, st.Err, "password")
	assert.Empty(t, b.logins, "invalid drafts are never sent")
}

func TestSession_LoginLogout(t *testing.T) {
	s, b, store, _ := setup(t)
	ctx := context.Background()
	initial := s.Snapshot()

	require.NoError(t, s.Login(ctx, user.Credentials{Email: " Jane@School.test ", Password: goodPwd, Role: "teacher"}))
	assert.Equal(t, "teacher", b.logins[0]["role"])

	st := s.Snapshot()
	assert.True(t, st.Authenticated)
	assert.Nil(t, st.Err)
	if assert.NotNil(t, st.Identity) {
		assert.Equal(t, core.ID("7"), st.Identity.ID)
		assert.Equal(t, "Jane Doe", st.Identity.DisplayName())
	}
	assert.Equal(t, user.RoleTeacher, st.Role)
	assert.Equal(t, core.ID("3"), st.SchoolID)
	assert.Equal(t, st.Access, s.AccessToken())
	assert.False(t, s.AccessExpired(time.Minute))

	for _, key := range []string{storage.KeyAccess, storage.KeyRefresh, storage.KeyUser, storage.KeyRole} {
		_, ok, _ := store.Get(ctx, key)
		assert.True(t, ok, key)
	}

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, initial, s.Snapshot())
	assert.Equal(t, 0, store.Len())

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, initial, s.Snapshot())
	assert.Equal(t, 0, store.Len())
}

func TestSession_Login_identityFailure(t *testing.T) {
	s, b, store, _ := setup(t)
	b.meStatus = http.StatusInternalServerError

	err := s.Login(context.Background(), user.Credentials{Email: goodEmail, Password: goodPwd})
	require.Error(t, err)

	st := s.Snapshot()
	assert.False(t, st.Authenticated)
	assert.Empty(t, st.Access)
	assert.Empty(t, s.AccessToken())
	assert.Equal(t, map[string][]string{core.NonFieldErrorsKey: {"Server Error"}}, st.Err)
	assert.Equal(t, 0, store.Len(), "no partial credential is persisted")
}

func TestSession_Login_failedRelogin(t *testing.T) {
	s, _, store, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, user.Credentials{Email: goodEmail, Password: goodPwd}))

	err := s.Login(ctx, user.Credentials{Email: "other@school.test", Password: "bad"})
	require.Error(t, err)
	assert.False(t, s.Snapshot().Authenticated)
	for _, key := range []string{storage.KeyAccess, storage.KeyRefresh, storage.KeyUser} {
		_, ok, _ := store.Get(ctx, key)
		assert.False(t, ok, key)
	}

	restarted := New(Options{Client: s.opts.Client, Store: store})
	require.NoError(t, restarted.Hydrate(ctx))
	st := restarted.Snapshot()
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.Identity)
	assert.Equal(t, user.RoleTeacher, st.Role, "the selected role survives")
}

func TestSession_Hydrate(t *testing.T) {
	s, _, store, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, user.Credentials{Email: goodEmail, Password: goodPwd}))

	restored := New(Options{Client: s.opts.Client, Store: store})
	require.NoError(t, restored.Hydrate(ctx))
	assert.Equal(t, s.Snapshot(), restored.Snapshot())

	// unreadable identity: anonymous, credentials kept for a later refresh
	require.NoError(t, store.Set(ctx, storage.KeyUser, "{nope"))
	require.NoError(t, restored.Hydrate(ctx))
	assert.False(t, restored.Snapshot().Authenticated)
	assert.Nil(t, restored.Snapshot().Identity)

	// fresh install
	empty := New(Options{Client: s.opts.Client, Store: inmemstore.New()})
	require.NoError(t, empty.Hydrate(ctx))
	assert.Equal(t, State{}, empty.Snapshot())
}

func TestSession_Refresh(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, _, store, _ := setup(t)
		ctx := context.Background()
		require.NoError(t, s.Login(ctx, user.Credentials{Email: goodEmail, Password: goodPwd}))
		before := s.Snapshot()

		require.NoError(t, s.Refresh(ctx))
		after := s.Snapshot()
		assert.True(t, after.Authenticated)
		assert.NotEqual(t, before.Access, after.Access)
		assert.Equal(t, "refresh-1", after.Refresh)

		access, _, _ := store.Get(ctx, storage.KeyAccess)
		assert.Equal(t, after.Access, access)
	})

	t.Run("failure ends the session", func(t *testing.T) {
		s, b, store, rec := setup(t)
		ctx := context.Background()
		require.NoError(t, s.Login(ctx, user.Credentials{Email: goodEmail, Password: goodPwd}))
		b.refreshBad = true

		err := s.Refresh(ctx)
		require.Error(t, err)
		assert.Equal(t, core.ErrSessionExpired.Error(), core.Normalize(err).Message())

		st := s.Snapshot()
		assert.False(t, st.Authenticated)
		assert.Nil(t, st.Identity)
		assert.Equal(t, map[string][]string{core.NonFieldErrorsKey: {core.ErrSessionExpired.Error()}}, st.Err)
		assert.Equal(t, user.RoleTeacher, st.Role)

		_, ok, _ := store.Get(ctx, storage.KeyAccess)
		assert.False(t, ok)
		last, _ := rec.Last()
		assert.Equal(t, notifysvc.Error, last.Severity)
	})

	t.Run("anonymous", func(t *testing.T) {
		s, _, _, _ := setup(t)
		err := s.Refresh(context.Background())
		require.Error(t, err)
		assert.True(t, s.Snapshot().Anonymous())
	})
}

func TestSession_WithCredentials(t *testing.T) {
	s, b, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, user.Credentials{Email: goodEmail, Password: goodPwd}))

	// the backend revokes the access credential: the decorator refreshes once and replays
	b.mu.Lock()
	b.valid = make(map[string]bool)
	b.mu.Unlock()

	rq := httpclient.WithCredentials(s.opts.Client, s)
	var me user.Identity
	require.NoError(t, httpclient.Get(ctx, rq, "/auth/users/me", nil, &me))
	assert.Equal(t, goodEmail, me.Email)
	assert.True(t, s.Snapshot().Authenticated)
}

func TestSession_Register(t *testing.T) {
	valid := func() user.Candidate {
		return user.Candidate{
			Role:            user.RoleStudent,
			Name:            "Amani Juma",
			Email:           "amani@school.test",
			Password:        goodPwd,
			PasswordConfirm: goodPwd,
		}
	}

	t.Run("client-side validation", func(t *testing.T) {
		s, b, _, _ := setup(t)
		cand := valid()
		cand.PasswordConfirm = "other"
		err := s.Register(context.Background(), cand)
		require.Error(t, err)
		assert.Contains(t, s.Snapshot().Err, "password_confirm")
		assert.Empty(t, b.registered)
	})

	t.Run("server field errors", func(t *testing.T) {
		s, _, _, _ := setup(t)
		cand := valid()
		cand.Email = "taken@school.test"
		err := s.Register(context.Background(), cand)
		require.Error(t, err)
		st := s.Snapshot()
		assert.False(t, st.Registered)
		assert.Equal(t, map[string][]string{"email": {"user with this email already exists."}}, st.Err)
	})

	t.Run("success never authenticates", func(t *testing.T) {
		s, b, store, _ := setup(t)
		ctx := context.Background()
		require.NoError(t, s.SelectSchool(ctx, "3"))

		require.NoError(t, s.Register(ctx, valid()))
		st := s.Snapshot()
		assert.True(t, st.Registered)
		assert.False(t, st.Authenticated)
		assert.Nil(t, st.Err)
		if assert.Len(t, b.registered, 1) {
			assert.Equal(t, "3", b.registered[0]["school"])
			assert.Equal(t, "student", b.registered[0]["role"])
		}
		role, _, _ := store.Get(ctx, storage.KeyRole)
		assert.Equal(t, user.RoleStudent, role)
	})
}

func TestSession_SelectRole(t *testing.T) {
	s, _, store, _ := setup(t)
	ctx := context.Background()

	err := s.SelectRole(ctx, "janitor")
	require.Error(t, err)
	assert.Equal(t, map[string][]string{"role": {"invalid role"}}, s.Snapshot().Err)

	require.NoError(t, s.SelectRole(ctx, " Admin "))
	assert.Equal(t, user.RoleAdmin, s.Snapshot().Role)
	assert.Nil(t, s.Snapshot().Err)
	role, _, _ := store.Get(ctx, storage.KeyRole)
	assert.Equal(t, user.RoleAdmin, role)

	require.NoError(t, s.SelectSchool(ctx, "12"))
	assert.Equal(t, core.ID("12"), s.Snapshot().SchoolID)
	require.NoError(t, s.SelectSchool(ctx, ""))
	_, ok, _ := store.Get(ctx, storage.KeySchoolID)
	assert.False(t, ok)
}

func TestSession_Subscribe(t *testing.T) {
	s, _, _, _ := setup(t)
	var states []State
	cancel := s.Subscribe(func(st State) { states = append(states, st) })

	_ = s.Login(context.Background(), user.Credentials{Email: goodEmail, Password: goodPwd})
	cancel()
	_ = s.Logout(context.Background())

	if assert.Len(t, states, 1) {
		assert.True(t, states[0].Authenticated)
	}
}

func Test_tokenExpired(t *testing.T) {
	now := time.Now()
	sign := func(exp time.Time) string {
		claims := jwt.StandardClaims{}
		if !exp.IsZero() {
			claims.ExpiresAt = exp.Unix()
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		token  string
		leeway time.Duration
		want   bool
	}{
		{name: "empty", token: "", want: false},
		{name: "opaque", token: "not-a-jwt", want: false},
		{name: "no exp", token: sign(time.Time{}), want: false},
		{name: "valid", token: sign(now.Add(time.Hour)), want: false},
		{name: "within leeway", token: sign(now.Add(30 * time.Second)), leeway: time.Minute, want: true},
		{name: "expired", token: sign(now.Add(-time.Minute)), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenExpired(tt.token, tt.leeway, now))
		})
	}
}
