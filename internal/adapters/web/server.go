package web

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/presenced/internal/adapters/reporting"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/core/services/engine"
)

// Server exposes the engine over HTTP and a websocket alert feed. It is a
// caller of the engine, not part of it: caller authentication stays with the
// host deployment.
type Server struct {
	Addr        string
	Engine      *engine.Engine
	Records     ports.RecordStore
	WSManager   *WSManager
	PDFExporter *reporting.PDFExporter

	srv *http.Server
}

// NewServer creates a new web server around an initialised engine.
func NewServer(addr string, eng *engine.Engine, records ports.RecordStore) *Server {
	s := &Server{
		Addr:        addr,
		Engine:      eng,
		Records:     records,
		WSManager:   NewWSManager(),
		PDFExporter: reporting.NewPDFExporter(),
	}
	// Flagged analyses stream straight to connected dashboards.
	eng.SetFlagNotifier(s.WSManager.BroadcastAnalysis)
	return s
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	handler := otelhttp.NewHandler(SetupRoutes(s), "presenced-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
