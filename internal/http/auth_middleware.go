package httpx

import (
	"context"
	"errors"
	"net/http"
)

type authContextKey string

type authInfo struct {
	UserID    string
	SessionID string
}

const contextKeyAuth authContextKey = "teamspace-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid session cookie before
// invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the session cookie and enriches the context. The
// session row is re-checked on every request, so a revoked session stops
// authenticating immediately.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := sessionToken(req, r.cfg.CookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	user, session, err := r.auth.ValidateSession(req.Context(), token)
	if err != nil {
		r.logger.Warn("session validation failed", "error", err, "path", req.URL.Path)
		r.clearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: user.ID, SessionID: session.ID}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// hasValidSession reports whether the request already carries a live
// session, without writing a response.
func (r *Router) hasValidSession(req *http.Request) bool {
	token, err := sessionToken(req, r.cfg.CookieName)
	if err != nil {
		return false
	}
	_, _, err = r.auth.ValidateSession(req.Context(), token)
	return err == nil
}

func sessionToken(req *http.Request, cookieName string) (string, error) {
	cookie, err := req.Cookie(cookieName)
	if err != nil {
		return "", errors.New("missing session cookie")
	}
	if cookie.Value == "" {
		return "", errors.New("empty session cookie")
	}
	return cookie.Value, nil
}
