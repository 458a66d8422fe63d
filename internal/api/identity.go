package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantigo/vantigo/internal/authz"
	"github.com/vantigo/vantigo/internal/impersonate"
)

// uidCookieName carries the signed user identity.
const uidCookieName = "vantigo_uid"

var errBadUIDCookie = errors.New("invalid uid cookie")

// User is the directory row behind a principal. TeamID is uuid.Nil for users
// without a team.
type User struct {
	ID     uuid.UUID
	Role   string
	TeamID uuid.UUID
}

// UserDirectory resolves request identities to directory rows.
// *PGUserDirectory implements it; tests provide mocks.
type UserDirectory interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*User, error)
	Get(ctx context.Context, id uuid.UUID) (*User, error)
}

// PGUserDirectory reads and provisions users in PostgreSQL.
type PGUserDirectory struct {
	pool *pgxpool.Pool
}

// NewPGUserDirectory creates a directory over the given pool.
func NewPGUserDirectory(pool *pgxpool.Pool) *PGUserDirectory {
	return &PGUserDirectory{pool: pool}
}

// GetOrCreate returns the user, provisioning a member row on first sight.
// The placeholder email marks auto-provisioned identities until a real
// signup claims them.
func (d *PGUserDirectory) GetOrCreate(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{ID: id}
	var teamID uuid.NullUUID
	err := d.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, role)
		VALUES ($1, $2, 'member')
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING role, team_id`,
		id, id.String()+"@anonymous.invalid",
	).Scan(&user.Role, &teamID)
	if err != nil {
		return nil, fmt.Errorf("provisioning user %s: %w", id, err)
	}
	if teamID.Valid {
		user.TeamID = teamID.UUID
	}
	return user, nil
}

// Get returns the user or an error if the row does not exist.
func (d *PGUserDirectory) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{ID: id}
	var teamID uuid.NullUUID
	err := d.pool.QueryRow(ctx, `
		SELECT role, team_id FROM users WHERE id = $1`,
		id,
	).Scan(&user.Role, &teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found", id)
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	if teamID.Valid {
		user.TeamID = teamID.UUID
	}
	return user, nil
}

type userCtxKey struct{}

var ctxKeyUser = userCtxKey{}

// userFromContext retrieves the directory row for the effective principal.
func userFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(*User)
	return u, ok
}

// signUID signs a user ID for the uid cookie: id.base64url(hmac).
func signUID(secret []byte, id uuid.UUID) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id.String()))
	return id.String() + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verifyUID parses and verifies a signed uid cookie value.
func verifyUID(secret []byte, value string) (uuid.UUID, error) {
	idPart, sigPart, ok := strings.Cut(value, ".")
	if !ok {
		return uuid.Nil, errBadUIDCookie
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, errBadUIDCookie
	}
	// Strict decoding rejects non-canonical encodings of the signature.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(sigPart)
	if err != nil {
		return uuid.Nil, errBadUIDCookie
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id.String()))
	if subtle.ConstantTimeCompare(sig, mac.Sum(nil)) != 1 {
		return uuid.Nil, errBadUIDCookie
	}
	return id, nil
}

func setUIDCookie(w http.ResponseWriter, value string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     uidCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   !isDev,
		SameSite: http.SameSiteLaxMode,
	})
}

// identityMiddleware resolves the request's signed uid cookie to a directory
// row, auto-provisioning a fresh member identity when the cookie is absent or
// fails verification. The resulting principal goes into the context.
func identityMiddleware(dir UserDirectory, secret []byte, isDev bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID uuid.UUID
			if cookie, err := r.Cookie(uidCookieName); err == nil {
				if id, err := verifyUID(secret, cookie.Value); err == nil {
					userID = id
				}
			}
			if userID == uuid.Nil {
				userID = uuid.New()
				setUIDCookie(w, signUID(secret, userID), isDev)
			}

			user, err := dir.GetOrCreate(r.Context(), userID)
			if err != nil {
				logger.Error("resolving identity", "error", err)
				WriteError(w, http.StatusInternalServerError, "identity_error", "could not resolve identity", logger)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			ctx = context.WithValue(ctx, ctxKeyPrincipal, authz.Principal{
				UserID: user.ID,
				Role:   user.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// impersonationMiddleware substitutes the principal when a valid
// impersonation cookie is present. Invalid, expired, or tampered tokens are
// treated uniformly as "no impersonation" and the cookie is cleared.
func impersonationMiddleware(codec *impersonate.Codec, dir UserDirectory, isDev bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := impersonate.FromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			state, err := codec.Decode(token)
			if err != nil {
				logger.Debug("dropping impersonation cookie", "error", err)
				impersonate.ClearCookie(w, isDev)
				next.ServeHTTP(w, r)
				return
			}

			// Only a superadmin session can carry a valid impersonation
			// cookie forward.
			p, ok := principalFromContext(r.Context())
			if !ok || p.Role != authz.RoleSuperadmin || p.UserID != state.SuperadminID {
				logger.Warn("impersonation cookie on non-superadmin session",
					"cookie_superadmin", state.SuperadminID)
				impersonate.ClearCookie(w, isDev)
				next.ServeHTTP(w, r)
				return
			}

			target, err := dir.Get(r.Context(), state.UserID)
			if err != nil {
				logger.Warn("impersonation target vanished", "user_id", state.UserID, "error", err)
				impersonate.ClearCookie(w, isDev)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, target)
			ctx = context.WithValue(ctx, ctxKeyPrincipal, authz.Principal{
				UserID:       target.ID,
				Role:         target.Role,
				Impersonated: true,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
