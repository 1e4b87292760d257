package rest

import (
	"encoding/json"
	"net/http"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"go.uber.org/zap"
)

// HandleEvent ingests one inbound channel event. When no flow is assigned to
// the channel the event is acknowledged and dropped.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var event model.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed trigger event")
		return
	}
	defer r.Body.Close()
	if len(event.ConversationId) == 0 || len(event.ChannelId) == 0 {
		respondWithError(w, http.StatusBadRequest, "conversationId and channelId are required")
		return
	}
	sess, err := s.sessions.HandleTrigger(&event)
	if err != nil {
		logger.Error("error handling trigger", zap.String("conversationId", event.ConversationId), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	if sess == nil {
		respondOK(w, map[string]any{"dropped": true})
		return
	}
	respondOK(w, map[string]any{"sessionId": sess.Id, "status": sess.Status})
}
