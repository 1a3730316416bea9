package server

import (
	"net/http"

	"github.com/anyashankar/cargo-clash/server/handler"
)

func Route(accept *handler.AcceptHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws/{player_id}", accept)
	mux.Handle("GET /health", handler.NewHealthHandler())
	return mux
}
