package gate

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/startupvista/vista-go/pkg/session"
)

// Middleware applies gate decisions to the routes of a local UI server.
type Middleware struct {
	snapshot func() session.Snapshot
	log      *logrus.Entry
}

// NewMiddleware creates gate middleware reading state through snapshot,
// typically (*auth.Service).Snapshot.
func NewMiddleware(snapshot func() session.Snapshot, logger *logrus.Logger) *Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Middleware{
		snapshot: snapshot,
		log:      logger.WithField("component", "gate"),
	}
}

// Protect guards a route with the protected-view decision table.
func (m *Middleware) Protect(allowedRoles ...session.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.apply(w, r, next, Protect(m.snapshot(), allowedRoles...))
		})
	}
}

// PublicOnly guards login/register routes against authenticated users.
func (m *Middleware) PublicOnly() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.apply(w, r, next, PublicOnly(m.snapshot()))
		})
	}
}

func (m *Middleware) apply(w http.ResponseWriter, r *http.Request, next http.Handler, d Decision) {
	switch d.Outcome {
	case OutcomePending:
		writeLoading(w)
	case OutcomeRedirect:
		m.log.WithFields(logrus.Fields{
			"path":     r.URL.Path,
			"location": d.Location,
		}).Debug("gate redirect")
		http.Redirect(w, r, d.Location, http.StatusSeeOther)
	default:
		next.ServeHTTP(w, r)
	}
}

// writeLoading renders the neutral loading indicator used while session
// state is still unsettled. Clients poll via the Refresh header.
func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><p>Checking session&hellip;</p></body></html>"))
}
