package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/convoflow/convoflow/assignment"
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/session"
	"github.com/convoflow/convoflow/tracker"
	"github.com/convoflow/convoflow/variable"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	metadataService metadata.Service
	assignments     *assignment.Manager
	sessions        *session.Manager
	tracker         *tracker.Tracker
	vars            *variable.Store
}

func NewServer(httpPort int, metadataService metadata.Service, assignments *assignment.Manager,
	sessions *session.Manager, tr *tracker.Tracker, vars *variable.Store) (*Server, error) {

	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService: metadataService,
		assignments:     assignments,
		sessions:        sessions,
		tracker:         tr,
		vars:            vars,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/metadata/flow", s.HandleSaveFlow).Methods(http.MethodPost)
	router.HandleFunc("/metadata/flow", s.HandleListFlows).Methods(http.MethodGet)
	router.HandleFunc("/metadata/flow/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/metadata/flow/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/metadata/flow/{id}/publish", s.HandlePublishFlow).Methods(http.MethodPost)

	router.HandleFunc("/assignment", s.HandleCreateAssignment).Methods(http.MethodPost)
	router.HandleFunc("/assignment/{id}", s.HandleGetAssignment).Methods(http.MethodGet)
	router.HandleFunc("/assignment/{id}/active", s.HandleSetAssignmentActive).Methods(http.MethodPost)

	router.HandleFunc("/event", s.HandleEvent).Methods(http.MethodPost)

	router.HandleFunc("/session/{id}", s.HandleGetSession).Methods(http.MethodGet)
	router.HandleFunc("/session/{id}/resume", s.HandleResumeSession).Methods(http.MethodPost)
	router.HandleFunc("/session/{id}/resume-paused", s.HandleResumePaused).Methods(http.MethodPost)
	router.HandleFunc("/session/{id}/cancel", s.HandleCancelSession).Methods(http.MethodPost)
	router.HandleFunc("/session/{id}/variables", s.HandleGetVariables).Methods(http.MethodGet)
	router.HandleFunc("/session/{id}/variables/{scope}", s.HandleClearVariables).Methods(http.MethodDelete)
	router.HandleFunc("/session/{id}/execution", s.HandleGetExecution).Methods(http.MethodGet)

	router.HandleFunc("/flow/{id}/sessions", s.HandleRecentSessions).Methods(http.MethodGet)
	router.HandleFunc("/flow/{id}/dropoff", s.HandleDropoff).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	res, _ := json.Marshal(message)
	w.Write(res)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithDomainError maps the typed errors of the engine onto http
// status codes.
func respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.As(err, &model.ValidationError{}):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &model.ConflictError{}):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &model.SessionNotFoundError{}):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &model.ExpiredSessionError{}):
		respondWithError(w, http.StatusGone, err.Error())
	case errors.As(err, &model.SessionLockedError{}):
		respondWithError(w, http.StatusLocked, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
