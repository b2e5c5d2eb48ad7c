package web

import (
	"net/http"

	"team-presence/pkg/common"
	"team-presence/services"
)

// handleListUsers 用户列表, 可按 role 过滤
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var role *string
	if v := r.URL.Query().Get("role"); v != "" {
		role = &v
	}

	users, err := s.users.List(r.Context(), role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

type userPatchRequest struct {
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role"`
	Active      *bool   `json:"active"`
}

// handleUpdateUser 修改用户资料、角色或状态
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req userPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// 管理员不能降级或停用自己
	if me := currentUser(r); me != nil && me.ID == id {
		if (req.Role != nil && *req.Role != me.Role) || (req.Active != nil && !*req.Active) {
			s.writeError(w, r, common.InvalidTransition("cannot demote or deactivate yourself"))
			return
		}
	}

	user, err := s.users.Update(r.Context(), id, services.UserPatch{
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Active:      req.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser 删除用户
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if me := currentUser(r); me != nil && me.ID == id {
		s.writeError(w, r, common.InvalidTransition("cannot delete yourself"))
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse("user deleted"))
}
