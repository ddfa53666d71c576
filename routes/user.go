package routes

import (
	"database/sql"

	"github.com/gorilla/mux"

	"projx.dev/social/handlers"
	"projx.dev/social/services"
)

// CreateAuthRoutes registers the routes that work without a credential.
func CreateAuthRoutes(db *sql.DB, auth *services.Auth, router *mux.Router) *mux.Router {
	router.HandleFunc("/register", handlers.Register(db)).Methods("POST")
	router.HandleFunc("/login", handlers.Login(db, auth)).Methods("POST")
	router.HandleFunc("/google-login", handlers.GoogleLogin(db, auth, services.VerifyIDToken)).Methods("POST")
	router.HandleFunc("/logout", handlers.Logout(auth)).Methods("POST")

	return router
}

func CreateUserRoutes(db *sql.DB, store *services.MediaStore, router *mux.Router) *mux.Router {
	router.HandleFunc("/current_user", handlers.GetCurrentUser(db)).Methods("GET")
	router.HandleFunc("/user/{id}", handlers.GetUserById(db)).Methods("GET")
	router.HandleFunc("/users", handlers.GetUsers(db)).Methods("GET")
	router.HandleFunc("/profile", handlers.UpdateProfile(db, store)).Methods("POST")
	router.HandleFunc("/fcm-token", handlers.RegisterFCMToken(db)).Methods("POST")

	router.HandleFunc("/friends", handlers.GetFriends(db)).Methods("GET")
	router.HandleFunc("/send-friend-request", handlers.SendFriendRequest(db)).Methods("POST")
	router.HandleFunc("/accept-friend-request", handlers.AcceptFriendRequest(db)).Methods("POST")
	router.HandleFunc("/notifications", handlers.GetNotifications(db)).Methods("GET")
	router.HandleFunc("/notifications/mark-all-read", handlers.MarkAllNotificationsRead(db)).Methods("POST")

	return router
}
