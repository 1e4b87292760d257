package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sess)
}

func (s *Server) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["id"]
	var input map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&input)
		defer r.Body.Close()
	}
	sess, err := s.sessions.Resume(sessionId, input)
	if err != nil {
		logger.Error("error resuming session", zap.String("sessionId", sessionId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondOK(w, map[string]any{"sessionId": sess.Id, "status": sess.Status, "currentNodeId": sess.CurrentNodeId})
}

func (s *Server) HandleResumePaused(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["id"]
	sess, err := s.sessions.ResumePaused(sessionId)
	if err != nil {
		logger.Error("error resuming paused session", zap.String("sessionId", sessionId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondOK(w, map[string]any{"sessionId": sess.Id, "status": sess.Status, "currentNodeId": sess.CurrentNodeId})
}

func (s *Server) HandleCancelSession(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["id"]
	sess, err := s.sessions.Cancel(sessionId)
	if err != nil {
		logger.Error("error cancelling session", zap.String("sessionId", sessionId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	respondOK(w, map[string]any{"sessionId": sess.Id, "status": sess.Status})
}

func (s *Server) HandleGetVariables(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(sessionId)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	vars, err := s.vars.List(sess)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, vars)
}

func (s *Server) HandleClearVariables(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if err := s.vars.ClearScope(sess, model.VarScope(mux.Vars(r)["scope"])); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["id"]
	exec, err := s.tracker.Execution(sessionId)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	steps, err := s.tracker.Steps(sessionId)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondOK(w, map[string]any{"execution": exec, "steps": steps})
}

func (s *Server) HandleRecentSessions(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	limit := 20
	if raw := r.URL.Query().Get("limit"); len(raw) != 0 {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	sessions, err := s.sessions.RecentByFlow(flowId, limit)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sessions)
}

func (s *Server) HandleDropoff(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	if companyId := r.URL.Query().Get("companyId"); len(companyId) != 0 {
		def, err := s.metadataService.GetFlowDef(flowId)
		if err != nil {
			respondWithDomainError(w, err)
			return
		}
		if def.CompanyId != companyId {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("flow %s not found for company %s", flowId, companyId))
			return
		}
	}
	report, err := s.tracker.Dropoff(flowId)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}
