package kernel

import (
	"fmt"
	"net/http"

	"github.com/manthysbr/aule-router/internal/core/services"
)

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

type agentResponse struct {
	AgentID      string   `json:"agent_id"`
	Changed      bool     `json:"changed"`
	ActiveAgents []string `json:"active_agents"`
}

func (s *Server) handleActivateAgent(w http.ResponseWriter, r *http.Request) {
	s.toggleAgent(w, r, true)
}

func (s *Server) handleDeactivateAgent(w http.ResponseWriter, r *http.Request) {
	s.toggleAgent(w, r, false)
}

func (s *Server) toggleAgent(w http.ResponseWriter, r *http.Request, activate bool) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var changed bool
	if activate {
		changed = s.state.ActivateAgent(id)
	} else {
		changed = s.state.DeactivateAgent(id)
	}
	writeJSON(w, http.StatusOK, agentResponse{
		AgentID:      id,
		Changed:      changed,
		ActiveAgents: s.state.Snapshot().ActiveAgents,
	})
}

// handleEvents streams bus events as SSE. Without a topic every event is
// delivered.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	var (
		ch    <-chan services.Event
		unsub func()
	)
	if topic := r.URL.Query().Get("topic"); topic != "" {
		ch, unsub = s.eventBus.Subscribe(topic)
	} else {
		ch, unsub = s.eventBus.SubscribeGlobal()
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
