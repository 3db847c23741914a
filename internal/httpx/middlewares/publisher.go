package middlewares

import (
	"net/http"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
)

// InstallPublisher makes p reachable through eventbus.Raise for the rest of
// the request.
func InstallPublisher(p eventbus.Publisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(eventbus.WithPublisher(r.Context(), p)))
		})
	}
}
