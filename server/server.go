package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/persist"
)

// requestTimeout bounds every request the chunk server serves; nothing
// here should block forever.
const requestTimeout = 5 * time.Minute

// Server is a running chunk server: a ChunkStore behind a TLS HTTP listener.
type Server struct {
	cfg   Config
	store *ChunkStore
	log   *persist.Logger
	http  *http.Server
}

// New opens the chunk store described by cfg.Chunks and wires it behind the
// versioned /v1/chunks API.
func New(cfg Config, log *persist.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenChunkStore(cfg.Chunks)
	if err != nil {
		return nil, errors.AddContext(err, "could not open chunk store")
	}
	api := NewAPI(store, log)
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           http.TimeoutHandler(api, requestTimeout, "request timed out"),
			ReadHeaderTimeout: 30 * time.Second,
		},
	}, nil
}

// ListenAndServe starts the TLS listener and blocks until ctx is cancelled
// or the server fails. On return, the underlying chunk store is closed.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer s.store.Close()

	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil {
		return errors.AddContext(err, "could not load TLS certificate")
	}
	s.http.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.AddContext(err, "could not bind address")
	}
	tlsLn := tls.NewListener(ln, s.http.TLSConfig)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting up")
		errCh <- s.http.Serve(tlsLn)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Contains(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
