package routes

import (
	"database/sql"

	"github.com/gorilla/mux"

	"projx.dev/social/handlers"
	"projx.dev/social/services"
)

func CreateChatRoutes(db *sql.DB, hub *handlers.Hub, store *services.MediaStore, router *mux.Router) *mux.Router {
	router.HandleFunc("/chats", handlers.GetChats(db)).Methods("GET")
	router.HandleFunc("/messages/send", handlers.SendMessage(db, hub)).Methods("POST")
	router.HandleFunc("/messages/{userId}", handlers.GetMessages(db)).Methods("GET")
	router.HandleFunc("/upload", handlers.UploadMedia(store)).Methods("POST")

	return router
}
