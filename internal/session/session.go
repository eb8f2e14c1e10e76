// Package session holds the authenticated identity of one storefront user.
// A Session is created on login, is active until logout and is passed
// explicitly to the components that act on the user's behalf.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"go.uber.org/zap"
)

type Session struct {
	identity domain.Identity
	expires  time.Time
	now      func() time.Time

	mu       sync.Mutex
	ended    bool
	teardown []func()
}

// Identity returns the session principal, or domain.ErrUnauthenticated once
// the session ended or its credential expired.
func (s *Session) Identity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if !s.expires.IsZero() && !s.now().Before(s.expires) {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	return s.identity, nil
}

func (s *Session) UserID() int64 {
	return s.identity.UserID
}

func (s *Session) Active() bool {
	_, err := s.Identity()
	return err == nil
}

// OnTeardown registers fn to run once on logout.
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = append(s.teardown, fn)
}

func (s *Session) end() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil
	}
	s.ended = true

	hooks := s.teardown
	s.teardown = nil
	return hooks
}

type Store struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logger, now: time.Now}
}

// Login starts a session. A previous session is torn down first.
func (st *Store) Login(identity domain.Identity) (*Session, error) {
	if identity.Token == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if identity.UserID == 0 {
		return nil, fmt.Errorf("userID is empty")
	}

	expires, err := tokenExpiry(identity.Token)
	if err != nil {
		return nil, fmt.Errorf("tokenExpiry: %w", err)
	}

	sess := &Session{identity: identity, expires: expires, now: st.now}
	if _, err := sess.Identity(); err != nil {
		return nil, err
	}

	st.mu.Lock()
	prev := st.current
	st.current = sess
	st.mu.Unlock()

	if prev != nil {
		st.teardown(prev)
	}

	st.logger.Info("session started", zap.Int64("user_id", identity.UserID), zap.Bool("admin", identity.IsAdmin()))
	return sess, nil
}

func (st *Store) Current() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.current == nil || !st.current.Active() {
		return nil, domain.ErrUnauthenticated
	}
	return st.current, nil
}

func (st *Store) Logout(sess *Session) {
	st.mu.Lock()
	if st.current == sess {
		st.current = nil
	}
	st.mu.Unlock()

	st.teardown(sess)
}

func (st *Store) teardown(sess *Session) {
	hooks := sess.end()
	for _, hook := range hooks {
		hook()
	}
	if hooks != nil {
		st.logger.Info("session ended", zap.Int64("user_id", sess.identity.UserID))
	}
}

// tokenExpiry reads the exp claim of JWT credentials without verifying the
// signature; the backend stays the authority. Opaque tokens never expire
// client-side.
func tokenExpiry(token domain.Credential) (time.Time, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(string(token), claims)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("claims.GetExpirationTime: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// IdentityFromToken builds an Identity from the sub, username and role
// claims of a JWT credential, unverified.
func IdentityFromToken(token domain.Credential) (domain.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(token), claims); err != nil {
		return domain.Identity{}, fmt.Errorf("parser.ParseUnverified: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("claims.GetSubject: %w", err)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Identity{}, fmt.Errorf("subject[%s] is not a user id", sub)
	}

	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)

	return domain.Identity{UserID: userID, Username: username, Token: token, Role: role}, nil
}
