// Package server は WebSocket ゲートウェイの HTTP 面を提供する。
package server

import (
	"context"
	"net/http"
)

type Server struct {
	HTTP *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		HTTP: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

func (s *Server) Serve() error                       { return s.HTTP.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }
