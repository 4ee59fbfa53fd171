package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
)

const SessionCookie = "lb_sid"

const (
	DefaultSessionTTL      = 7 * 24 * time.Hour
	defaultCleanupInterval = 24 * time.Hour
)

// Store is the persistence the session manager needs. *db.DB satisfies it.
type Store interface {
	CreateSession(ctx context.Context, userID int, ip, ua string, ttl time.Duration) (string, error)
	GetSession(ctx context.Context, sessionID string) (*db.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
	GetUserByID(ctx context.Context, id int) (*db.User, error)
}

// SessionConfig controls how long a login lasts and how often expired rows
// are purged. Zero durations take the defaults.
type SessionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	Secure          bool // Secure cookie flag, set in production
}

// SessionManager issues the lb_sid cookie backed by a sessions row. The row's
// expiry and the cookie's Max-Age always use the same TTL.
type SessionManager struct {
	store        Store
	logger       *slog.Logger
	ttl          time.Duration
	cleanupEvery time.Duration
	secure       bool
}

func NewSessionManager(store Store, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	return &SessionManager{
		store:        store,
		logger:       logger,
		ttl:          cfg.TTL,
		cleanupEvery: cfg.CleanupInterval,
		secure:       cfg.Secure,
	}
}

// TTL is the lifetime given to new sessions.
func (sm *SessionManager) TTL() time.Duration { return sm.ttl }

// Create stores a session for userID and sets the cookie.
func (sm *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID int, r *http.Request) error {
	sessionID, err := sm.store.CreateSession(ctx, userID, remoteIP(r), r.UserAgent(), sm.ttl)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	http.SetCookie(w, sm.cookie(sessionID, int(sm.ttl.Seconds())))
	return nil
}

// Validate reads the cookie and returns the logged-in user, or nil when there
// is no live session.
func (sm *SessionManager) Validate(ctx context.Context, r *http.Request) (*db.User, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	session, err := sm.store.GetSession(ctx, cookie.Value)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	user, err := sm.store.GetUserByID(ctx, session.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// Destroy deletes the session row and expires the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if err := sm.store.DeleteSession(ctx, cookie.Value); err != nil {
			sm.logger.Warn("delete session failed", "err", err)
		}
	}
	http.SetCookie(w, sm.cookie("", -1))
}

// CleanupLoop purges expired sessions once at start and then every cleanup
// interval until ctx is cancelled.
func (sm *SessionManager) CleanupLoop(ctx context.Context) {
	sm.sweep(ctx)
	ticker := time.NewTicker(sm.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.sweep(ctx)
		}
	}
}

func (sm *SessionManager) sweep(ctx context.Context) {
	deleted, err := sm.store.CleanExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			sm.logger.Error("session cleanup failed", "err", err)
		}
		return
	}
	if deleted > 0 {
		sm.logger.Info("cleaned expired sessions", "count", deleted)
	}
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	}
}

// remoteIP returns the client address without its port, or "" when it is not
// a valid IP. sessions.ip_address is an inet column.
func remoteIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
