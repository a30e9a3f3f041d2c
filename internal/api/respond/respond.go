// Package respond writes the JSON response envelope used by all handlers.
package respond

import (
	"encoding/json"
	"net/http"
)

type successResponse struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// OK writes a 200 response with the given result.
func OK(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Result: result})
}

// Created writes a 201 response with the given result.
func Created(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusCreated, successResponse{Success: true, Result: result})
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail writes an error response with the given status.
func Fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
