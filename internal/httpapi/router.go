package httpapi

import (
	"net/http"

	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/gateway"
	"tow-dispatch/internal/general/jwt"
	"tow-dispatch/internal/general/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the HTTP surface: order CRUD, pricing quotes and the
// WebSocket location gateway. The gateway route authenticates itself (token
// may arrive via query parameter), everything else goes through the JWT
// middleware.
func NewRouter(log *logger.Logger, jwtMgr *jwt.Manager, orders *OrderHandler, gw *gateway.Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(jwt.AuthMiddleware(jwtMgr, user.RoleClient, user.RoleOperator))
		r.Post("/orders", orders.Create)
	})

	r.Group(func(r chi.Router) {
		r.Use(jwt.AuthMiddleware(jwtMgr, user.RoleClient, user.RoleDriver, user.RoleOperator))
		r.Get("/orders/{id}", orders.Get)
		r.Post("/orders/{id}/status", orders.Advance)
		r.Get("/pricing/quote", orders.Quote)
	})

	r.Group(func(r chi.Router) {
		r.Use(jwt.AuthMiddleware(jwtMgr, user.RoleDriver))
		r.Post("/drivers/location", NewLocationHandler(log, gw).Report)
	})

	r.Get("/ws/locations", gw.Connect)

	return r
}
