package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/mediaflow/model"
)

const DEFAULT_POLL_BATCH = 1

func (s *Server) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !decode(w, r, &req) {
		return
	}
	job, err := s.jobService.Submit(r.Context(), req)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, job)
}

func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) HandleListProjectJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobService.ListByProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, jobs)
}

func (s *Server) HandleStartJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) HandleCompleteJob(w http.ResponseWriter, r *http.Request) {
	var report model.JobReport
	if !decode(w, r, &report) {
		return
	}
	job, err := s.jobService.Complete(r.Context(), mux.Vars(r)["id"], report.Output)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) HandleFailJob(w http.ResponseWriter, r *http.Request) {
	var report model.JobReport
	if !decode(w, r, &report) {
		return
	}
	job, err := s.jobService.Fail(r.Context(), mux.Vars(r)["id"], report.Error)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) HandlePoll(w http.ResponseWriter, r *http.Request) {
	batch := DEFAULT_POLL_BATCH
	if v := r.URL.Query().Get("batch"); len(v) != 0 {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > model.MAX_POLL_BATCH {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("batch must be between 1 and %d", model.MAX_POLL_BATCH))
			return
		}
		batch = n
	}
	msgs, err := s.jobService.Poll(r.Context(), mux.Vars(r)["channel"], batch)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, msgs)
}
