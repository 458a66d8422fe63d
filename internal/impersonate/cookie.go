package impersonate

import (
	"net/http"
	"time"
)

// CookieName carries the signed impersonation state.
const CookieName = "vantigo_imp"

// SetCookie writes the impersonation cookie. HttpOnly keeps it out of
// scripts; Secure is dropped only in dev so plain-HTTP localhost works.
func SetCookie(w http.ResponseWriter, token string, expiresAt time.Time, now time.Time, isDev bool) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if !now.IsZero() {
		maxAge = int(expiresAt.Sub(now).Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !isDev,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the impersonation cookie.
func ClearCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !isDev,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts the raw token from the request, if present.
func FromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
