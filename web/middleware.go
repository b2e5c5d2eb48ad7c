package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"team-presence/auth"
	"team-presence/database"
	"team-presence/pkg/common"
)

type ctxKey int

const userKey ctxKey = iota

// currentUser 返回已认证的用户
func currentUser(r *http.Request) *database.User {
	u, _ := r.Context().Value(userKey).(*database.User)
	return u
}

// statusRecorder 记录响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Hijack WebSocket 升级需要
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// logRequests 请求日志
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// recoverPanics 捕获 panic, 返回 500
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.writeError(w, r, common.Internal("panic", fmt.Errorf("%v", p)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate 校验 Bearer 令牌并加载用户, 用户必须存在且处于激活状态
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.writeError(w, r, unauthorized("missing bearer token", nil))
			return
		}

		claims, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			s.writeError(w, r, unauthorized(msg, err))
			return
		}

		user, err := s.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			if common.IsKind(err, common.KindNotFound) {
				s.writeError(w, r, unauthorized("user no longer exists", err))
				return
			}
			s.writeError(w, r, err)
			return
		}
		if !user.Active {
			s.writeError(w, r, unauthorized("account disabled", nil))
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// requireRoles 认证后检查角色
func (s *Server) requireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return s.authenticate(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil || !database.OneOf(user.Role, roles) {
			s.writeError(w, r, common.NewAppError(common.KindForbidden, "insufficient permissions", nil))
			return
		}
		next(w, r)
	})
}

// managers admin 与 coach
func (s *Server) managers(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRoles(next, database.RoleAdmin, database.RoleCoach)
}

// admins 仅 admin
func (s *Server) admins(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRoles(next, database.RoleAdmin)
}

func unauthorized(message string, cause error) *common.AppError {
	if cause == nil {
		cause = common.ErrUnauthorized
	}
	return common.NewAppError(common.KindUnauthorized, message, cause)
}
