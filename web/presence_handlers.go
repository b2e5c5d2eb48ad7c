package web

import (
	"net/http"

	"team-presence/pkg/common"
	"team-presence/services"
)

type presenceBatchRequest struct {
	Presences []services.PresenceInput `json:"presences"`
}

type ownPresenceRequest struct {
	Status string `json:"status"`
}

// handleUpsertPresences 管理员/教练批量登记出勤, 整批成功或整批失败
func (s *Server) handleUpsertPresences(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req presenceBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Presences == nil {
		s.writeError(w, r, common.Validation(map[string]string{"presences": "required"}))
		return
	}

	if err := s.presences.Upsert(r.Context(), id, req.Presences); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventPresencesUpdated, id, req.Presences)
	writeJSON(w, http.StatusOK, ackResponse("presences updated"))
}

// handleSubmitOwnPresence 球员提交自己的出勤, 窗口必须打开
func (s *Server) handleSubmitOwnPresence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req ownPresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	me := currentUser(r)
	if err := s.presences.SubmitOwn(r.Context(), id, me.ID, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventPresencesUpdated, id, []services.PresenceInput{{UserID: me.ID, Status: req.Status}})
	writeJSON(w, http.StatusOK, ackResponse("presence recorded"))
}

// handleGetPresences 出勤名单和统计
func (s *Server) handleGetPresences(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	roster, err := s.presences.Roster(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}
