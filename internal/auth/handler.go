package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
)

// UserStore is the account persistence the handlers need. *db.DB satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (int, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// Handler serves the email/password account endpoints.
type Handler struct {
	users    UserStore
	sessions *SessionManager
	logger   *slog.Logger
}

func NewHandler(users UserStore, sm *SessionManager, logger *slog.Logger) *Handler {
	return &Handler{users: users, sessions: sm, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and starts a session.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.users.CreateUser(r.Context(), email, hash)
	if errors.Is(err, db.ErrEmailTaken) {
		writeError(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("create user failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.Create(r.Context(), w, id, r); err != nil {
		h.logger.Error("create session failed", "user_id", id, "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("user signed up", "user_id", id)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(db.User{ID: id, Email: email})
}

// Login checks credentials and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email, err := NormalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		writeError(w, errBadCredential.Error(), http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.logger.Error("get user failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, errBadCredential.Error(), http.StatusUnauthorized)
		return
	}

	if err := h.sessions.Create(r.Context(), w, user.ID, r); err != nil {
		h.logger.Error("create session failed", "user_id", user.ID, "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Validate(r.Context(), r)
	if err != nil {
		h.logger.Error("session validate failed", "err", err)
	}
	if user == nil {
		writeError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// Logout destroys the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(r.Context(), w, r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "logged out"})
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
