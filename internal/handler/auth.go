package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/store"
)

// requireAuth accepts either a bearer token issued by /login or HTTP basic
// credentials checked against the users table.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authenticate(r)
		if err != nil {
			slog.Error("authentication failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+h.config.Realm+`", charset="UTF-8"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate returns nil without error when the credentials are missing or wrong.
func (h *Handler) authenticate(r *http.Request) (*model.User, error) {
	if token, ok := bearerToken(r); ok {
		t, err := h.store.GetAPIToken(token)
		if err != nil || t == nil {
			return nil, err
		}
		user, err := h.store.GetUserByID(t.UserID)
		if err != nil || user == nil || !user.Active {
			return nil, err
		}
		return user, nil
	}
	if username, password, ok := r.BasicAuth(); ok {
		return h.checkPassword(username, password)
	}
	return nil, nil
}

func (h *Handler) checkPassword(username, password string) (*model.User, error) {
	user, err := h.store.GetUserByUsername(username)
	if err != nil || user == nil || !user.Active {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return user, nil
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"` // seconds
	Role      string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.checkPassword(req.Username, req.Password)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		slog.Warn("login rejected", "username", req.Username)
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := h.store.CreateAPIToken(user.ID)
	if err != nil {
		slog.Error("failed to create api token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("user logged in", "username", user.Username)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int(store.TokenTTL.Seconds()),
		Role:      string(user.Role),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := bearerToken(r); ok {
		if err := h.store.DeleteAPIToken(token); err != nil {
			slog.Error("failed to revoke token", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
