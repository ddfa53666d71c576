package routes

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"projx.dev/social/handlers"
	"projx.dev/social/services"
)

// NewRouter wires every route. Everything under /api except the auth routes
// requires a credential; /ws checks its own before upgrading.
func NewRouter(db *sql.DB, auth *services.Auth, store *services.MediaStore, hub *handlers.Hub) *mux.Router {
	router := mux.NewRouter()
	router.Use(handlers.LogRequests)

	api := router.PathPrefix("/api").Subrouter()
	CreateAuthRoutes(db, auth, api)

	protected := api.NewRoute().Subrouter()
	protected.Use(handlers.RequireAuth(auth))
	CreateUserRoutes(db, store, protected)
	CreatePostRoutes(db, store, protected)
	CreateChatRoutes(db, hub, store, protected)

	router.HandleFunc("/ws", hub.ServeWS)
	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(store.Dir()))))

	return router
}
