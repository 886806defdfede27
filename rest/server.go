package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/mohitkumar/mediaflow/workflow"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port         int
	jobService   *service.JobService
	registry     *registry.ModuleRegistry
	orchestrator *workflow.Orchestrator
}

func NewServer(httpPort int, jobService *service.JobService, registry *registry.ModuleRegistry, orchestrator *workflow.Orchestrator) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		jobService:   jobService,
		registry:     registry,
		orchestrator: orchestrator,
		Port:         httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/jobs", s.HandleSubmitJob).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}", s.HandleGetJob).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}/start", s.HandleStartJob).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/complete", s.HandleCompleteJob).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/fail", s.HandleFailJob).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/cancel", s.HandleCancelJob).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}/jobs", s.HandleListProjectJobs).Methods(http.MethodGet)
	router.HandleFunc("/queues/{channel}/poll", s.HandlePoll).Methods(http.MethodGet)

	router.HandleFunc("/modules", s.HandleRegisterModule).Methods(http.MethodPost)
	router.HandleFunc("/modules", s.HandleListModules).Methods(http.MethodGet)
	router.HandleFunc("/modules/{id}", s.HandleGetModule).Methods(http.MethodGet)

	router.HandleFunc("/workflows/drafts", s.HandleCreateDraft).Methods(http.MethodPost)
	router.HandleFunc("/workflows/drafts/generate", s.HandleGenerateDraft).Methods(http.MethodPost)
	router.HandleFunc("/workflows/drafts/{id}", s.HandleGetDraft).Methods(http.MethodGet)
	router.HandleFunc("/workflows/drafts/{id}/steps", s.HandleUpdateSteps).Methods(http.MethodPut)
	router.HandleFunc("/workflows/drafts/{id}/ready", s.HandleMarkReady).Methods(http.MethodPost)
	router.HandleFunc("/workflows/drafts/{id}/execute", s.HandleExecute).Methods(http.MethodPost)
	router.HandleFunc("/workflows/drafts/{id}/status", s.HandleStatus).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithFailure maps the api error types onto status codes.
func respondWithFailure(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var poll api.PollError
	switch {
	case api.IsValidation(err):
		code = http.StatusBadRequest
	case api.IsNotFound(err), errors.As(err, &poll):
		code = http.StatusNotFound
	case api.IsInvalidTransition(err), api.IsInvalidState(err):
		code = http.StatusConflict
	default:
		logger.Error("request failed", zap.Error(err))
	}
	respondWithError(w, code, err.Error())
}
