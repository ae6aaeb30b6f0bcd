package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/inventory/internal/core"
)

type ctxKey int

const sessionKey ctxKey = iota

// sessionCtx resolves {sessionID} and stores the session and its id in the
// request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.service.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		ctx := core.ContextWithSessionID(r.Context(), sess.ID())
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session stored by sessionCtx.
func sessionFrom(r *http.Request) *core.Session {
	sess, _ := r.Context().Value(sessionKey).(*core.Session)
	return sess
}

// locale returns the locale used for messages: the session's when there is
// one, otherwise the Accept-Language header.
func locale(r *http.Request) string {
	if sess := sessionFrom(r); sess != nil && sess.Locale() != "" {
		return sess.Locale()
	}
	return r.Header.Get("Accept-Language")
}
