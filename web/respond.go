package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"team-presence/pkg/common"
)

const maxBodySize = 1 << 20

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error         string            `json:"error"`
	Kind          common.Kind       `json:"kind"`
	Details       map[string]string `json:"details,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Cause         string            `json:"cause,omitempty"`
}

// writeJSON 写 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// writeError 按错误分类写响应; 内部错误只返回关联 ID
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	resp := ErrorResponse{Kind: kind}

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Details = appErr.Fields
	}

	switch kind {
	case common.KindInternal:
		id := uuid.NewString()
		s.logger.Error("%s %s failed [%s]: %v", r.Method, r.URL.Path, id, err)
		resp.Error = "internal error"
		resp.Details = nil
		resp.CorrelationID = id
		if s.config.Environment == "development" {
			resp.Cause = err.Error()
		}
	case common.KindUnavailable:
		s.logger.Warn("%s %s: storage unavailable: %v", r.Method, r.URL.Path, err)
		resp.Error = "service temporarily unavailable"
	default:
		if resp.Error == "" {
			resp.Error = err.Error()
		}
	}

	writeJSON(w, kind.HTTPStatus(), resp)
}

// decodeJSON 解析请求体, 格式错误返回校验错误
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return common.Validation(map[string]string{"body": "required"})
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return common.Validation(map[string]string{typeErr.Field: "has the wrong type"})
		}
		return common.Validation(map[string]string{"body": "invalid JSON"})
	}
	return nil
}

// ackResponse 简单确认响应
func ackResponse(message string) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"message": message,
	}
}
