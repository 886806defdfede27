package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/mediaflow/model"
)

func (s *Server) HandleRegisterModule(w http.ResponseWriter, r *http.Request) {
	var module model.ModuleCapability
	if !decode(w, r, &module) {
		return
	}
	saved, err := s.registry.Register(r.Context(), module)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, saved)
}

func (s *Server) HandleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.registry.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, modules)
}

func (s *Server) HandleGetModule(w http.ResponseWriter, r *http.Request) {
	module, err := s.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, module)
}
