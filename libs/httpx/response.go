package httpx

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

func WriteFieldErrors(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Fields: fields})
}
