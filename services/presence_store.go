package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"team-presence/database"
	"team-presence/pkg/common"
)

// PresenceInput 一条出勤提交
type PresenceInput struct {
	UserID uuid.UUID `json:"userId"`
	Status string    `json:"status"`
}

const upsertPresenceSQL = `
	INSERT INTO presences (user_id, match_id, status, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (user_id, match_id)
	DO UPDATE SET
		status = EXCLUDED.status,
		updated_at = NOW()
`

// PresenceStore 出勤记录仓库
type PresenceStore struct {
	pool   *database.Pool
	logger common.Logger
}

// NewPresenceStore 创建出勤仓库
func NewPresenceStore(pool *database.Pool, logger common.Logger) *PresenceStore {
	return &PresenceStore{
		pool:   pool,
		logger: logger,
	}
}

// Upsert 在一个事务中批量写入出勤, 任意一条失败则全部回滚
func (s *PresenceStore) Upsert(ctx context.Context, matchID uuid.UUID, inputs []PresenceInput) error {
	if err := validatePresences(inputs); err != nil {
		return err
	}

	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		if _, err := lockMatch(ctx, q, matchID); err != nil {
			return err
		}
		return upsertAll(ctx, q, matchID, inputs)
	})
	if err != nil {
		return database.Classify(err)
	}

	s.logger.Info("Upserted %d presences for match %s", len(inputs), matchID)
	return nil
}

// SubmitOwn 球员提交自己的出勤, 要求出勤窗口已打开
func (s *PresenceStore) SubmitOwn(ctx context.Context, matchID, userID uuid.UUID, status string) error {
	inputs := []PresenceInput{{UserID: userID, Status: status}}
	if err := validatePresences(inputs); err != nil {
		return err
	}

	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		m, err := lockMatch(ctx, q, matchID)
		if err != nil {
			return err
		}
		if !m.PresenceOpen {
			return common.InvalidTransition("presences are closed for this match")
		}
		return upsertAll(ctx, q, matchID, inputs)
	})
	if err != nil {
		return database.Classify(err)
	}

	s.logger.Debug("User %s marked %s for match %s", userID, status, matchID)
	return nil
}

// Roster 返回比赛的完整名单和统计, 没有记录的成员视为 unknown
func (s *PresenceStore) Roster(ctx context.Context, matchID uuid.UUID) (*database.Roster, error) {
	roster := &database.Roster{
		MatchID:   matchID,
		Presences: []database.RosterEntry{},
	}

	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var exists bool
		if err := q.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)", matchID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return common.NotFound("match")
		}

		rows, err := q.QueryContext(ctx, `
			SELECT u.id, u.display_name, u.email, u.role,
			       COALESCE(p.status, 'unknown') AS status, p.updated_at
			FROM users u
			LEFT JOIN presences p ON p.user_id = u.id AND p.match_id = $1
			WHERE u.role = ANY($2)
			ORDER BY u.display_name ASC, u.id ASC
		`, matchID, pq.Array(database.RosterRoles))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e         database.RosterEntry
				updatedAt sql.NullTime
			)
			if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Email, &e.Role, &e.Status, &updatedAt); err != nil {
				return err
			}
			if updatedAt.Valid {
				t := updatedAt.Time
				e.UpdatedAt = &t
			}
			roster.Presences = append(roster.Presences, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	roster.Stats = ComputeStats(roster.Presences)
	return roster, nil
}

// ComputeStats 统计出勤, present + absent + unknown == total
func ComputeStats(entries []database.RosterEntry) database.RosterStats {
	stats := database.RosterStats{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case database.PresencePresent:
			stats.Present++
		case database.PresenceAbsent:
			stats.Absent++
		default:
			stats.Unknown++
		}
	}
	return stats
}

func validatePresences(inputs []PresenceInput) error {
	if len(inputs) == 0 {
		return common.Validation(map[string]string{"presences": "must not be empty"})
	}
	fields := map[string]string{}
	for i, in := range inputs {
		if in.UserID == uuid.Nil {
			fields[fmt.Sprintf("presences[%d].userId", i)] = "required"
		}
		if !database.OneOf(in.Status, database.PresenceStatuses) {
			fields[fmt.Sprintf("presences[%d].status", i)] = "must be one of " + strings.Join(database.PresenceStatuses, ", ")
		}
	}
	if len(fields) > 0 {
		return common.Validation(fields)
	}
	return nil
}

// upsertAll 按输入顺序逐条写入, 外键错误定位到具体的一条
func upsertAll(ctx context.Context, q database.Querier, matchID uuid.UUID, inputs []PresenceInput) error {
	for i, in := range inputs {
		if _, err := q.ExecContext(ctx, upsertPresenceSQL, in.UserID, matchID, in.Status); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" {
				e := common.Validation(map[string]string{
					fmt.Sprintf("presences[%d].userId", i): "user does not exist",
				})
				e.Cause = err
				return e
			}
			return fmt.Errorf("upsert presence %d: %w", i, err)
		}
	}
	return nil
}
