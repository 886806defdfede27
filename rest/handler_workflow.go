package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/mediaflow/model"
)

func (s *Server) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDraftRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := s.orchestrator.CreateDraft(r.Context(), req)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, draft)
}

func (s *Server) HandleGenerateDraft(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateDraftRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := s.orchestrator.GenerateDraft(r.Context(), req)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, draft)
}

func (s *Server) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.orchestrator.GetDraft(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, draft)
}

func (s *Server) HandleUpdateSteps(w http.ResponseWriter, r *http.Request) {
	var steps []model.WorkflowStep
	if !decode(w, r, &steps) {
		return
	}
	draft, err := s.orchestrator.UpdateSteps(r.Context(), mux.Vars(r)["id"], steps)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, draft)
}

func (s *Server) HandleMarkReady(w http.ResponseWriter, r *http.Request) {
	draft, err := s.orchestrator.MarkReady(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, draft)
}

// HandleExecute takes an optional {"project_id": ...} body.
func (s *Server) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req model.ExecuteRequest
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) != 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}
	res, err := s.orchestrator.Execute(r.Context(), mux.Vars(r)["id"], req.ProjectId)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orchestrator.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}
