package routes

import (
	"database/sql"

	"github.com/gorilla/mux"

	"projx.dev/social/handlers"
	"projx.dev/social/services"
)

func CreatePostRoutes(db *sql.DB, store *services.MediaStore, router *mux.Router) *mux.Router {
	router.HandleFunc("/feeds", handlers.GetFeed(db)).Methods("GET")
	router.HandleFunc("/user_posts/{id}", handlers.GetPostsByUser(db)).Methods("GET")
	router.HandleFunc("/posts", handlers.CreatePost(db, store)).Methods("POST")
	router.HandleFunc("/posts/{id}/like", handlers.ToggleLike(db)).Methods("POST")
	router.HandleFunc("/posts/{id}/comments", handlers.CreateComment(db)).Methods("POST")

	return router
}
