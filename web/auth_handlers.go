package web

import (
	"errors"
	"net/http"

	"team-presence/auth"
	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/services"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type authResponse struct {
	User  *database.User `json:"user"`
	Token string         `json:"token"`
}

// handleRegister 注册, 第一个用户成为管理员
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		s.writeError(w, r, common.Validation(map[string]string{"password": err.Error()}))
		return
	}
	if err != nil {
		s.writeError(w, r, common.Internal("hash password", err))
		return
	}

	user, err := s.users.Create(r.Context(), services.UserInput{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.writeError(w, r, common.Internal("issue token", err))
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// handleLogin 登录
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, r, common.Validation(map[string]string{"credentials": "email and password are required"}))
		return
	}

	invalid := unauthorized("invalid credentials", nil)

	user, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			s.writeError(w, r, invalid)
			return
		}
		s.writeError(w, r, err)
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		s.writeError(w, r, common.Internal("check password", err))
		return
	}
	if !ok {
		s.writeError(w, r, invalid)
		return
	}
	if !user.Active {
		s.writeError(w, r, unauthorized("account disabled", nil))
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.writeError(w, r, common.Internal("issue token", err))
		return
	}
	s.logger.Info("User %s logged in", user.Email)
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// handleMe 当前用户
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}
