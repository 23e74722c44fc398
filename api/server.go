// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package api implements a JSON administration surface for operators: a
// liveness check and a statistics dump. It listens over plain TCP on
// whatever address cfg.API.ListenAddr names (nothing restricts it to
// loopback), never over I2P, and is disabled when that address is empty.
package api

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/majestrate/i2ptracker/config"
	"github.com/majestrate/i2ptracker/tracker"
)

// ResponseHandler is an HTTP handler that returns a status code.
type ResponseHandler func(http.ResponseWriter, *http.Request, httprouter.Params) (int, error)

// Server is the admin API's HTTP front end.
type Server struct {
	config  *config.Config
	tracker *tracker.Tracker
	srv     *http.Server
}

// NewServer returns a new API server bound to cfg.API.ListenAddr. If
// ListenAddr is empty the API is disabled; Serve becomes a no-op.
func NewServer(cfg *config.Config, tkr *tracker.Tracker) *Server {
	return &Server{config: cfg, tracker: tkr}
}

// Setup exists to satisfy the supervisor's uniform server interface; the
// admin API needs no preparation beyond what NewServer already does.
func (s *Server) Setup() error { return nil }

func makeHandler(handler ResponseHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		httpCode, err := handler(w, r, p)
		if err != nil {
			http.Error(w, err.Error(), httpCode)
			return
		}
		if httpCode != http.StatusOK {
			http.Error(w, http.StatusText(httpCode), httpCode)
		}
	}
}

func newRouter(s *Server) *httprouter.Router {
	r := httprouter.New()
	r.GET("/check", makeHandler(s.check))
	r.GET("/stats", makeHandler(s.stats))
	return r
}

// Serve runs the admin HTTP server, blocking until it shuts down. It is a
// no-op if no ListenAddr was configured.
func (s *Server) Serve() {
	if s.config.API.ListenAddr == "" {
		glog.Info("api: disabled (no listen address configured)")
		return
	}

	s.srv = &http.Server{
		Addr:         s.config.API.ListenAddr,
		Handler:      newRouter(s),
		ReadTimeout:  s.config.API.ReadTimeout.Duration,
		WriteTimeout: s.config.API.WriteTimeout.Duration,
	}

	glog.Infof("api: serving on %s", s.config.API.ListenAddr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Errorf("api: server error: %s", err)
	}
}

// Stop shuts the admin server down, if it is running.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}
