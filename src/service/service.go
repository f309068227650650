package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/intercoop/icnnode/src/state"
	"github.com/sirupsen/logrus"
)

// maxBodySize bounds the vertex payloads accepted from peers.
const maxBodySize = 1 << 20

// Service exposes the read-side query surface of a node and the ingestion
// endpoint used by peers.
type Service struct {
	bindAddress string

	state       *state.Manager
	store       *queue.Store
	ledger      *dag.Ledger
	directory   federation.Directory
	broadcaster *federation.Broadcaster

	mux    *http.ServeMux
	logger *logrus.Entry
}

// NewService creates a Service. directory and broadcaster may be nil, in
// which case the peer endpoints report no peers.
func NewService(bindAddress string,
	mgr *state.Manager,
	store *queue.Store,
	ledger *dag.Ledger,
	directory federation.Directory,
	broadcaster *federation.Broadcaster,
	logger *logrus.Entry) *Service {

	service := Service{
		bindAddress: bindAddress,
		state:       mgr,
		store:       store,
		ledger:      ledger,
		directory:   directory,
		broadcaster: broadcaster,
		mux:         http.NewServeMux(),
		logger:      logger.WithField("prefix", "service"),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/status", s.makeHandler(http.MethodGet, s.GetStatus))
	s.mux.HandleFunc("/dag_info", s.makeHandler(http.MethodGet, s.GetDagInfo))
	s.mux.HandleFunc("/dag_vertex", s.makeHandler(http.MethodGet, s.GetDagVertex))
	s.mux.HandleFunc("/dag/vertices", s.makeHandler("", s.Vertices))
	s.mux.HandleFunc("/proposal", s.makeHandler(http.MethodGet, s.GetProposal))
	s.mux.HandleFunc("/peers", s.makeHandler(http.MethodGet, s.GetPeers))
	s.mux.HandleFunc("/federation/health", s.makeHandler(http.MethodGet, s.GetHealth))
}

func (s *Service) makeHandler(method string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if method != "" && r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed: %s", r.Method)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("Request")

		fn(w, r)
	}
}

// Handler returns the request multiplexer of the service.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address until ctx is cancelled. This is a
// blocking call.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.bindAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("bind_address", s.bindAddress).Info("Serving API")

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return common.WrapErr(common.Network, err, "Failed to serve API")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, code int, result interface{}) {
	writeJSON(w, code, map[string]interface{}{"result": result})
}

func writeError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	writeJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

// statusFor maps an error to the HTTP status of its response.
func statusFor(err error) int {
	switch {
	case common.IsKind(err, common.Dag), common.IsKind(err, common.Queue):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
