/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server exposes the client Interface over HTTP: JSON endpoints
// for the scan lifecycle, an SSE stream for events and a tarball download
// for artifacts. It holds no state of its own.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/client"
)

// shutdownTimeout bounds graceful shutdown once the context is cancelled.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end. It translates requests into client calls
// and client errors into status codes; all scan state lives behind the
// Interface.
type Server struct {
	// BindAddr is the address to listen on, e.g. 0.0.0.0:8080.
	BindAddr string

	varco      client.Interface
	resultsDir string

	readyCh chan struct{}
}

// New constructs a Server on top of the given client. resultsDir is where
// scan directories live; the artifacts endpoint streams them from there.
func New(varco client.Interface, bindAddr, resultsDir string) *Server {
	return &Server{
		BindAddr:   bindAddr,
		varco:      varco,
		resultsDir: resultsDir,
		readyCh:    make(chan struct{}),
	}
}

// Routes returns the configured router; exposed so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/scans", s.startScan).Methods(http.MethodPost)
	api.HandleFunc("/scans", s.listScans).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", s.getScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", s.cancelScan).Methods(http.MethodDelete)
	api.HandleFunc("/scans/{id}/events", s.streamEvents).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/result", s.getResult).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/artifacts", s.getArtifacts).Methods(http.MethodGet)
	api.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	return r
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down gracefully. WaitUntilReady unblocks once the listener is up.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.BindAddr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %v", s.BindAddr)
	}

	srv := &http.Server{
		Addr:    s.BindAddr,
		Handler: s.Routes(),
	}

	logrus.WithField("addr", l.Addr().String()).Info("serving the scan API")

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(l)
	}()
	// Not perfect since the goroutine above may not schedule right away,
	// but close enough and it helps in testing.
	close(s.readyCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("forced server shutdown")
			srv.Close()
		}
		<-done
		return nil
	case err := <-done:
		return errors.Wrap(err, "server stopped unexpectedly")
	}
}

// WaitUntilReady blocks until the server is listening on its configured
// address. Only valid once per Start.
func (s *Server) WaitUntilReady() {
	<-s.readyCh
}
