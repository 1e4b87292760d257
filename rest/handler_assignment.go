package rest

import (
	"encoding/json"
	"net/http"

	"github.com/convoflow/convoflow/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type createAssignmentRequest struct {
	FlowId    string `json:"flowId"`
	ChannelId string `json:"channelId"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed assignment request")
		return
	}
	defer r.Body.Close()
	if len(req.FlowId) == 0 || len(req.ChannelId) == 0 {
		respondWithError(w, http.StatusBadRequest, "flowId and channelId are required")
		return
	}
	a, err := s.assignments.Create(req.FlowId, req.ChannelId)
	if err != nil {
		logger.Error("error creating assignment", zap.String("flowId", req.FlowId),
			zap.String("channelId", req.ChannelId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (s *Server) HandleGetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.assignments.Get(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (s *Server) HandleSetAssignmentActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request")
		return
	}
	defer r.Body.Close()
	a, err := s.assignments.SetActive(mux.Vars(r)["id"], req.Active)
	if err != nil {
		logger.Error("error toggling assignment", zap.String("id", mux.Vars(r)["id"]), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}
