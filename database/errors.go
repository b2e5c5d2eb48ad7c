package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"team-presence/pkg/common"
)

// constraintFields 约束名到 API 字段名的映射
var constraintFields = map[string]string{
	"users_email_lower_key":        "email",
	"matches_date_location_key":    "date",
	"matches_man_of_match_id_fkey": "manOfMatchId",
	"presences_user_id_fkey":       "userId",
	"presences_match_id_fkey":      "matchId",
	"matches_score_team_check":     "scoreTeam",
	"matches_score_opponent_check": "scoreOpponent",
}

// FieldFor 返回约束对应的字段名
func FieldFor(constraint string) string {
	if f, ok := constraintFields[constraint]; ok {
		return f
	}
	if constraint == "" {
		return "value"
	}
	return constraint
}

// Classify 把驱动错误映射为 common.AppError
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return common.NotFound("record")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505": // unique_violation
			e := common.Conflict("duplicate "+FieldFor(pqErr.Constraint), err)
			e.Fields = map[string]string{FieldFor(pqErr.Constraint): "already exists"}
			return e
		case pqErr.Code == "23503": // foreign_key_violation
			e := common.Validation(map[string]string{FieldFor(pqErr.Constraint): "referenced record does not exist"})
			e.Cause = err
			return e
		case pqErr.Code == "23514", pqErr.Code == "22P02", pqErr.Code == "22007", pqErr.Code == "22008":
			e := common.Validation(map[string]string{FieldFor(pqErr.Constraint): "invalid value"})
			e.Cause = err
			return e
		case pqErr.Code.Class() == "08", pqErr.Code == "53300", pqErr.Code == "57P03":
			return common.Unavailable(err)
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return common.Unavailable(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.Unavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.Unavailable(err)
	}

	return common.Internal("database error", err)
}
