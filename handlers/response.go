package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"projx.dev/social/services"
)

// room for form fields and part headers on top of the file itself
const uploadOverhead = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("[http] encode response: %v", err)
	}
}

// writeError replies with the {"error": msg} body the SDK reads.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}

func pathInt(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	return id, err == nil && id > 0
}

// parseUpload caps the body and parses a multipart form. On failure the
// reply has already been written.
func parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+uploadOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		} else {
			writeError(w, http.StatusBadRequest, "Invalid form data")
		}
		return false
	}
	return true
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, services.ErrTooLarge)
}

// writeSaveError maps a failed MediaStore.Save to a reply.
func writeSaveError(w http.ResponseWriter, err error, msg string) {
	if tooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}
