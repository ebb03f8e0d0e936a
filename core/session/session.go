// Package session owns the authentication lifecycle: Anonymous -> (login) -> Authenticated -> (logout | refresh failure) -> Anonymous.
// It is the only reader and writer of the persisted session keys.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/endpoint"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/httpclient"
	"github.com/trezcool/masomo-portal/services/notify"
	"github.com/trezcool/masomo-portal/storage"
)

type State struct {
	Identity      *user.Identity
	Access        string
	Refresh       string
	Authenticated bool
	Registered    bool
	Role          string
	SchoolID      core.ID
	Err           map[string][]string
}

// Anonymous reports whether no identity is authenticated.
func (s State) Anonymous() bool { return !s.Authenticated }

type Options struct {
	Client    httpclient.Requester // credential-blind: the session attaches credentials itself
	Store     storage.Store
	Logger    core.Logger
	Validator *core.Validator // defaults to user.NewValidator()
	Notifier  notifysvc.Notifier
}

type Session struct {
	opts Options

	mu    sync.Mutex
	state State

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

var _ httpclient.CredentialSource = (*Session)(nil)

func New(opts Options) *Session {
	if opts.Validator == nil {
		opts.Validator = user.NewValidator()
	}
	return &Session{opts: opts, subs: make(map[int]func(State))}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Hydrate restores the persisted session; called once at startup.
func (s *Session) Hydrate(ctx context.Context) error {
	vals := make(map[string]string, len(storage.SessionKeys))
	for _, key := range storage.SessionKeys {
		val, ok, err := s.opts.Store.Get(ctx, key)
		if err != nil {
			return errors.Wrap(err, "hydrating session")
		}
		if ok {
			vals[key] = val
		}
	}

	var identity *user.Identity
	if raw := vals[storage.KeyUser]; raw != "" {
		var usr user.Identity
		if err := json.Unmarshal([]byte(raw), &usr); err != nil {
			s.warn("discarding unreadable persisted identity", err)
		} else {
			identity = &usr
		}
	}

	s.update(func(st *State) {
		*st = State{
			Identity:      identity,
			Access:        vals[storage.KeyAccess],
			Refresh:       vals[storage.KeyRefresh],
			Authenticated: vals[storage.KeyAccess] != "" && identity != nil,
			Role:          vals[storage.KeyRole],
			SchoolID:      core.ID(vals[storage.KeySchoolID]),
		}
	})
	return nil
}

// Register submits a registration. It never authenticates.
func (s *Session) Register(ctx context.Context, cand user.Candidate) error {
	cand.Clean()
	if cand.School.IsZero() {
		cand.School = s.Snapshot().SchoolID
	}
	if err := s.opts.Validator.Struct(cand); err != nil {
		s.fail(err)
		return err
	}

	if err := httpclient.Post(ctx, s.opts.Client, endpoint.Register, cand, nil); err != nil {
		s.fail(err)
		s.logErr("registration failed", err)
		return err
	}
	if err := s.opts.Store.Set(ctx, storage.KeyRole, cand.Role); err != nil {
		s.warn("persisting role", err)
	}
	s.update(func(st *State) {
		st.Registered = true
		st.Role = cand.Role
		st.Err = nil
	})
	s.notify(notifysvc.Success, "Registration successful, you can now log in")
	return nil
}

// Login exchanges the credentials for a credential pair, then fetches the identity with the new access credential.
// Credentials are persisted only once both steps succeeded.
func (s *Session) Login(ctx context.Context, creds user.Credentials) error {
	creds.Clean()
	cur := s.Snapshot()
	if creds.Role == "" {
		creds.Role = cur.Role
	}
	if creds.School.IsZero() {
		creds.School = cur.SchoolID
	}
	if err := s.opts.Validator.Struct(creds); err != nil {
		s.loginFailed(ctx, err)
		return err
	}

	var tokens user.Tokens
	if err := httpclient.Post(ctx, s.opts.Client, endpoint.AuthJWTCreate, creds, &tokens); err != nil {
		s.loginFailed(ctx, err)
		return err
	}
	if tokens.Access == "" {
		err := &core.APIError{Status: http.StatusOK, Detail: "unexpected response from the server", Err: errors.New("no access credential")}
		s.loginFailed(ctx, err)
		return err
	}
	identity, err := s.fetchIdentity(ctx, tokens.Access)
	if err != nil {
		s.loginFailed(ctx, err)
		return err
	}

	role := identity.Role
	if role == "" {
		role = creds.Role
		identity.Role = role
	}
	school := firstID(identity.School, creds.School)
	if err := s.persist(ctx, tokens, identity, role, school); err != nil {
		s.loginFailed(ctx, err)
		return err
	}

	s.update(func(st *State) {
		*st = State{
			Identity:      &identity,
			Access:        tokens.Access,
			Refresh:       tokens.Refresh,
			Authenticated: true,
			Role:          role,
			SchoolID:      school,
		}
	})
	s.info("logged in", identity)
	return nil
}

// Refresh exchanges the refresh credential for a new access credential, then re-fetches the identity.
// Any failure ends the session.
func (s *Session) Refresh(ctx context.Context) error {
	cur := s.Snapshot()
	if cur.Refresh == "" {
		return s.expire(ctx, errors.New("no refresh credential"))
	}

	var tokens user.Tokens
	if err := httpclient.Post(ctx, s.opts.Client, endpoint.AuthJWTRefresh, map[string]string{"refresh": cur.Refresh}, &tokens); err != nil {
		return s.expire(ctx, err)
	}
	if tokens.Access == "" {
		return s.expire(ctx, errors.New("no access credential"))
	}
	if tokens.Refresh == "" {
		tokens.Refresh = cur.Refresh
	}
	identity, err := s.fetchIdentity(ctx, tokens.Access)
	if err != nil {
		return s.expire(ctx, err)
	}
	if identity.Role == "" {
		identity.Role = cur.Role
	}

	if err := s.persist(ctx, tokens, identity, "", ""); err != nil {
		return s.expire(ctx, err)
	}
	s.update(func(st *State) {
		st.Identity = &identity
		st.Access = tokens.Access
		st.Refresh = tokens.Refresh
		st.Authenticated = true
		st.Err = nil
	})
	s.debug("access credential refreshed")
	return nil
}

// Logout clears the session and every persisted key. Calling it again is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.update(func(st *State) { *st = State{} })
	return errors.Wrap(s.opts.Store.Delete(ctx, storage.SessionKeys...), "clearing session")
}

// SelectRole records the role picked on the role-selection screen.
func (s *Session) SelectRole(ctx context.Context, role string) error {
	role = core.CleanString(role, true /* lower */)
	if !user.IsRole(role) {
		err := core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
		s.fail(err)
		return err
	}
	if err := s.opts.Store.Set(ctx, storage.KeyRole, role); err != nil {
		return errors.Wrap(err, "persisting role")
	}
	s.update(func(st *State) {
		st.Role = role
		st.Err = nil
	})
	return nil
}

// SelectSchool records the school affiliation used by registration and login.
func (s *Session) SelectSchool(ctx context.Context, id core.ID) error {
	if id.IsZero() {
		if err := s.opts.Store.Delete(ctx, storage.KeySchoolID); err != nil {
			return errors.Wrap(err, "clearing school")
		}
	} else if err := s.opts.Store.Set(ctx, storage.KeySchoolID, id.String()); err != nil {
		return errors.Wrap(err, "persisting school")
	}
	s.update(func(st *State) { st.SchoolID = id })
	return nil
}

// AccessToken returns the current access credential ("" when anonymous).
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Authenticated {
		return ""
	}
	return s.state.Access
}

// AccessExpired reports whether the access credential expires within leeway, according to its `exp` claim.
// Credentials that are not JWTs, or carry no `exp`, are never considered expired.
func (s *Session) AccessExpired(leeway time.Duration) bool {
	return tokenExpired(s.AccessToken(), leeway, time.Now())
}

func tokenExpired(token string, leeway time.Duration, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil || claims.ExpiresAt == 0 {
		return false
	}
	return now.Add(leeway).Unix() >= claims.ExpiresAt
}

func (s *Session) fetchIdentity(ctx context.Context, access string) (user.Identity, error) {
	var identity user.Identity
	req := &httpclient.Request{
		Method: http.MethodGet,
		Path:   endpoint.AuthMe,
		Header: http.Header{"Authorization": {"Bearer " + access}},
	}
	if err := httpclient.Send(ctx, s.opts.Client, req, &identity); err != nil {
		return identity, err
	}
	if identity.ID.IsZero() && identity.Email == "" {
		return identity, &core.APIError{Status: http.StatusOK, Detail: "unexpected response from the server", Err: errors.New("empty identity")}
	}
	return identity, nil
}

// persist writes the credentials & identity; role and school are only written when set.
func (s *Session) persist(ctx context.Context, tokens user.Tokens, identity user.Identity, role string, school core.ID) error {
	usr, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "encoding identity")
	}
	vals := [][2]string{
		{storage.KeyAccess, tokens.Access},
		{storage.KeyRefresh, tokens.Refresh},
		{storage.KeyUser, string(usr)},
	}
	if role != "" {
		vals = append(vals, [2]string{storage.KeyRole, role})
	}
	if !school.IsZero() {
		vals = append(vals, [2]string{storage.KeySchoolID, school.String()})
	}
	for _, kv := range vals {
		if err := s.opts.Store.Set(ctx, kv[0], kv[1]); err != nil {
			return errors.Wrapf(err, "persisting %s", kv[0])
		}
	}
	return nil
}

// loginFailed leaves the session Anonymous, without any usable credential, in memory and in the store.
func (s *Session) loginFailed(ctx context.Context, err error) {
	if dErr := s.opts.Store.Delete(ctx, storage.KeyAccess, storage.KeyRefresh, storage.KeyUser); dErr != nil {
		s.warn("clearing previous session", dErr)
	}
	s.update(func(st *State) {
		st.Identity = nil
		st.Access, st.Refresh = "", ""
		st.Authenticated = false
		st.Err = core.Normalize(err).FieldErrors()
	})
	s.logErr("login failed", err)
}

// expire ends the session after a failed refresh. The role & school stay selected.
func (s *Session) expire(ctx context.Context, cause error) error {
	status := 0
	if apiErr, ok := errors.Cause(cause).(*core.APIError); ok {
		status = apiErr.Status
	}
	err := &core.APIError{
		Status: status,
		Detail: core.ErrSessionExpired.Error(),
		Err:    errors.Wrap(cause, "refreshing session"),
	}

	if dErr := s.opts.Store.Delete(ctx, storage.KeyAccess, storage.KeyRefresh, storage.KeyUser); dErr != nil {
		s.warn("clearing expired session", dErr)
	}
	s.update(func(st *State) {
		st.Identity = nil
		st.Access, st.Refresh = "", ""
		st.Authenticated = false
		st.Err = err.FieldErrors()
	})
	s.warn("session expired", cause)
	s.notify(notifysvc.Error, core.ErrSessionExpired.Error())
	return err
}

func (s *Session) fail(err error) {
	s.update(func(st *State) {
		st.Err = core.Normalize(err).FieldErrors()
	})
}

func (s *Session) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()
	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Session) snapshotLocked() State {
	snap := s.state
	if s.state.Identity != nil {
		identity := *s.state.Identity
		snap.Identity = &identity
	}
	if s.state.Err != nil {
		snap.Err = make(map[string][]string, len(s.state.Err))
		for k, v := range s.state.Err {
			snap.Err[k] = append([]string(nil), v...)
		}
	}
	return snap
}

func (s *Session) notify(severity, msg string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(notifysvc.Notification{Severity: severity, Resource: "session", Message: msg})
	}
}

func (s *Session) debug(msg string, args ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, args...)
	}
}

func (s *Session) info(msg string, args ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

func (s *Session) warn(msg string, args ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}

func (s *Session) logErr(msg string, args ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, args...)
	}
}

func firstID(ids ...core.ID) core.ID {
	for _, id := range ids {
		if !id.IsZero() {
			return id
		}
	}
	return ""
}
