package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleSaveFlow(w http.ResponseWriter, r *http.Request) {
	var def model.FlowDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow definition")
		return
	}
	defer r.Body.Close()
	saved, err := s.metadataService.SaveFlow(&def)
	if err != nil {
		logger.Error("error saving flow definition", zap.String("flowId", def.Id), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, saved)
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	if version := r.URL.Query().Get("version"); len(version) != 0 {
		v, err := strconv.Atoi(version)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "version must be a number")
			return
		}
		fl, err := s.metadataService.GetFlow(flowId, v)
		if err != nil {
			respondWithDomainError(w, err)
			return
		}
		respondOK(w, map[string]any{"id": fl.Id, "version": fl.Version, "rootNode": fl.Root, "requiredNodes": fl.Required})
		return
	}
	def, err := s.metadataService.GetFlowDef(flowId)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.metadataService.ListFlows()
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, defs)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteFlow(flowId); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandlePublishFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	def, err := s.metadataService.PublishFlow(flowId)
	if err != nil {
		logger.Error("error publishing flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}
