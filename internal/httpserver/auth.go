// internal/httpserver/auth.go
//
// Authentication: signup/login/logout, JWT (HS256) in an HttpOnly cookie or
// Authorization bearer header, and a long-lived anonymous cookie so guests
// keep a stable identity across requests. Play stats for anonymous sessions
// are claimed into the account on signup/login.

package httpserver

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const anonCookieName = "geohunt_anon"

// authUser is placed into request context by auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

// Auth owns user records and token handling.
type Auth struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewAuth wraps a database handle.
func NewAuth(db *sql.DB, logger zerolog.Logger) *Auth {
	return &Auth{db: db, logger: logger}
}

// mountAuthRoutes registers /auth/*.
func (s *Server) mountAuthRoutes(r chi.Router) {
	r.Post("/auth/signup", s.Auth.handleSignup)
	r.Post("/auth/login", s.Auth.handleLogin)
	r.Post("/auth/logout", s.Auth.handleLogout)
	r.With(s.Auth.RequireAuth()).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		respond(w, http.StatusOK, me)
	})
}

// Request payloads for signup/login.
type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSignup creates a user, signs a JWT, sets the auth cookie, and claims
// any anonymous play history.
func (a *Auth) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid_json")
		return
	}
	u, err := a.createUser(body.Username, body.Password)
	if err != nil {
		if errors.Is(err, errUsernameTaken) {
			respond(w, http.StatusConflict, errRes{Error: "username taken"})
			return
		}
		badRequest(w, err.Error())
		return
	}
	tok, exp, err := a.signJWT(u.ID, u.Username)
	if err != nil {
		respond(w, http.StatusInternalServerError, errRes{Error: "sign_failed"})
		return
	}
	a.setAuthCookie(w, tok, exp)
	a.claimAnonStats(a.EnsureAnonID(w, r), u.ID)
	respond(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username, "createdAt": u.CreatedAt})
}

// handleLogin authenticates, sets the cookie, and claims anonymous history.
func (a *Auth) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid_json")
		return
	}
	u, err := a.findUserByUsername(strings.TrimSpace(body.Username))
	if err != nil || !checkPassword(u.PasswordHash, body.Password) {
		respond(w, http.StatusUnauthorized, errRes{Error: "Invalid username or password"})
		return
	}
	tok, exp, err := a.signJWT(u.ID, u.Username)
	if err != nil {
		respond(w, http.StatusInternalServerError, errRes{Error: "sign_failed"})
		return
	}
	a.setAuthCookie(w, tok, exp)
	a.claimAnonStats(a.EnsureAnonID(w, r), u.ID)
	respond(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username})
}

// handleLogout clears the auth cookie.
func (a *Auth) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.clearAuthCookie(w)
	respond(w, http.StatusOK, map[string]bool{"ok": true})
}

// --------------------------- middleware ------------------------------------

// WithOptionalAuth decorates requests with user context when a valid JWT is
// present. It never 401s; guests are allowed through.
func (a *Auth) WithOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, err := a.userFromToken(bearerOrCookie(r)); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth enforces a valid JWT and injects authUser into context.
func (a *Auth) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := a.userFromToken(bearerOrCookie(r))
			if err != nil {
				respond(w, http.StatusUnauthorized, errRes{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u)))
		})
	}
}

func (a *Auth) userFromToken(tok string) (*authUser, error) {
	if tok == "" {
		return nil, errors.New("no token")
	}
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(getEnv("JWT_SECRET", "dev_secret_change_me")), nil
	})
	if err != nil || !t.Valid {
		return nil, errors.New("invalid token")
	}
	id, _ := claims["id"].(string)
	username, _ := claims["username"].(string)
	if id == "" || username == "" {
		return nil, errors.New("invalid claims")
	}
	// Ensure the user still exists.
	if _, err := a.findUserByID(id); err != nil {
		return nil, err
	}
	return &authUser{ID: id, Username: username}, nil
}

// Identity resolves the caller to a stable (userID, displayName) pair:
// the authenticated account when present, otherwise the anonymous cookie.
func (a *Auth) Identity(w http.ResponseWriter, r *http.Request) (userID, displayName string) {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return me.ID, me.Username
	}
	anon := a.EnsureAnonID(w, r)
	tail := anon
	if len(tail) > 6 {
		tail = tail[:6]
	}
	return "anon:" + anon, "guest-" + tail
}

// EnsureAnonID returns an existing anon cookie or sets a new one.
func (a *Auth) EnsureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := genID()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction(),
		SameSite: cookieSameSite(),
		Expires:  time.Now().Add(180 * 24 * time.Hour),
	})
	return id
}

// claimAnonStats folds an anonymous session's solo history and stats into a
// real account after auth. Best effort.
func (a *Auth) claimAnonStats(anonID, userID string) {
	if anonID == "" || userID == "" {
		return
	}
	anon := "anon:" + anonID
	if _, err := a.db.Exec(`UPDATE solo_games SET user_id=? WHERE user_id=?`, userID, anon); err != nil {
		a.logger.Warn().Err(err).Msg("claim anon solo games")
	}
	if _, err := a.db.Exec(`DELETE FROM user_stats WHERE user_id=?`, anon); err != nil {
		a.logger.Warn().Err(err).Msg("drop anon stats")
	}
}

// ------------------------ users --------------------------------------------

var errUsernameTaken = errors.New("username taken")

// userRow matches the users table shape.
type userRow struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// createUser validates input, checks uniqueness, hashes the password, and
// inserts a new user.
func (a *Auth) createUser(username, pw string) (*userRow, error) {
	username = strings.TrimSpace(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	var exists int
	_ = a.db.QueryRow(`SELECT 1 FROM users WHERE lower(username)=lower(?)`, username).Scan(&exists)
	if exists == 1 {
		return nil, errUsernameTaken
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	id := genID()
	if _, err := a.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, username, string(h), now.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return &userRow{ID: id, Username: username, PasswordHash: string(h), CreatedAt: now}, nil
}

func (a *Auth) findUserByUsername(username string) (*userRow, error) {
	row := a.db.QueryRow(`SELECT id, username, password_hash, created_at
	                      FROM users WHERE lower(username)=lower(?)`, username)
	return scanUser(row)
}

func (a *Auth) findUserByID(id string) (*userRow, error) {
	row := a.db.QueryRow(`SELECT id, username, password_hash, created_at
	                      FROM users WHERE id=?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*userRow, error) {
	var u userRow
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3-24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return errors.New("password must be 8-100 chars")
	}
	return nil
}

// ------------------------------ JWT & cookies ------------------------------

// signJWT creates an HS256 JWT with id/username and a configurable expiry
// (JWT_EXPIRES_DAYS; default 14).
func (a *Auth) signJWT(id, username string) (string, time.Time, error) {
	secret := getEnv("JWT_SECRET", "dev_secret_change_me")
	days := 14
	if v := os.Getenv("JWT_EXPIRES_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	exp := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      time.Now().Unix(),
	})
	ss, err := t.SignedString([]byte(secret))
	return ss, exp, err
}

func (a *Auth) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     getEnv("COOKIE_NAME", "geohunt_token"),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction(),
		SameSite: cookieSameSite(),
		Expires:  exp,
	})
}

func (a *Auth) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     getEnv("COOKIE_NAME", "geohunt_token"),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction(),
		SameSite: cookieSameSite(),
		MaxAge:   -1,
	})
}

// bearerOrCookie extracts a token from the Authorization header or cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(getEnv("COOKIE_NAME", "geohunt_token")); err == nil {
		return c.Value
	}
	return ""
}

func isProduction() bool { return os.Getenv("APP_ENV") == "production" }

func cookieSameSite() http.SameSite {
	if isProduction() {
		return http.SameSiteNoneMode // required for cross-site contexts when Secure
	}
	return http.SameSiteLaxMode
}

// genID creates a 22-char URL-safe, crypto-random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	s := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b[:])
	if len(s) > 22 {
		return s[:22]
	}
	return s
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
