package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"stagecall/internal/types"
)

// BearerAuth returns middleware that requires an Authorization header of
// the form "Bearer <token>" matching the expected secret. Comparison is
// constant time so response timing does not leak key prefixes.
//
// The operator routes are guarded with the admin API key; the internal
// run endpoints (dispatch, sync) use the scheduler run token instead so
// the two credentials can be rotated independently.
func BearerAuth(expected types.SecretString) func(http.Handler) http.Handler {
	want := []byte(expected.Unmask())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenMissing,
					"missing bearer token",
					nil,
				))
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenInvalid,
					"invalid token",
					nil,
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header. The
// "Bearer" scheme is matched case-insensitively per RFC 6750.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
