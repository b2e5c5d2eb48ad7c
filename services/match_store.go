package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/pkg/query"
)

const (
	// DefaultPageLimit 默认分页大小
	DefaultPageLimit = 50
	// MaxPageLimit 最大分页大小
	MaxPageLimit = 100
)

// MatchOrder 列表排序, 只允许白名单内的值
type MatchOrder string

const (
	OrderDate        MatchOrder = "date"
	OrderDateDesc    MatchOrder = "date_desc"
	OrderCreatedDesc MatchOrder = "created_desc"
)

var matchOrderSQL = map[MatchOrder]string{
	OrderDate:        "date ASC, id ASC",
	OrderDateDesc:    "date DESC, id ASC",
	OrderCreatedDesc: "created_at DESC, id ASC",
}

// ParseMatchOrder 解析排序参数, 空字符串返回默认排序
func ParseMatchOrder(s string) (MatchOrder, error) {
	if s == "" {
		return OrderDate, nil
	}
	o := MatchOrder(s)
	if _, ok := matchOrderSQL[o]; !ok {
		return "", common.Validation(map[string]string{"sort": "must be one of date, date_desc, created_desc"})
	}
	return o, nil
}

// MatchFilter 列表过滤条件, nil 字段表示不过滤
type MatchFilter struct {
	Status   *string
	Type     *string
	IsHome   *bool
	DateFrom *time.Time
	DateTo   *time.Time
}

func (f MatchFilter) clauses() []query.Clause {
	return []query.Clause{
		query.Opt("status", query.Equals, f.Status),
		query.Opt("type", query.Equals, f.Type),
		query.Opt("is_home", query.Equals, f.IsHome),
		query.Opt("date", query.GreaterOrEqual, f.DateFrom),
		query.Opt("date", query.LessOrEqual, f.DateTo),
	}
}

// Validate 校验枚举值
func (f MatchFilter) Validate() error {
	fields := map[string]string{}
	if f.Status != nil && !database.OneOf(*f.Status, database.MatchStatuses) {
		fields["status"] = "must be one of " + strings.Join(database.MatchStatuses, ", ")
	}
	if f.Type != nil && !database.OneOf(*f.Type, database.MatchTypes) {
		fields["type"] = "must be one of " + strings.Join(database.MatchTypes, ", ")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		fields["dateTo"] = "must not be before dateFrom"
	}
	if len(fields) > 0 {
		return common.Validation(fields)
	}
	return nil
}

// MatchList 分页结果
type MatchList struct {
	Rows  []database.Match
	Total int
}

// MatchInput 创建比赛的输入
type MatchInput struct {
	Opponent      string
	Location      string
	Date          time.Time
	IsHome        *bool
	Type          string
	Status        string
	Description   *string
	ScoreTeam     *int
	ScoreOpponent *int
	ManOfMatchID  *uuid.UUID
}

// MatchPatch 部分更新, nil 字段保持不变
type MatchPatch struct {
	Opponent      *string
	Location      *string
	Date          *time.Time
	IsHome        *bool
	Type          *string
	Status        *string
	Description   *string
	ScoreTeam     *int
	ScoreOpponent *int
	ManOfMatchID  *uuid.UUID
	PresenceOpen  *bool
}

func (p MatchPatch) assigns() []query.Clause {
	return []query.Clause{
		setOpt("opponent", p.Opponent),
		setOpt("location", p.Location),
		setOpt("date", p.Date),
		setOpt("is_home", p.IsHome),
		setOpt("type", p.Type),
		setOpt("status", p.Status),
		setOpt("description", p.Description),
		setOpt("score_team", p.ScoreTeam),
		setOpt("score_opponent", p.ScoreOpponent),
		setOpt("man_of_match_id", p.ManOfMatchID),
		setOpt("presence_open", p.PresenceOpen),
	}
}

// setOpt 非 nil 时返回赋值子句
func setOpt[T any](column string, v *T) query.Clause {
	if v == nil {
		return query.Absent(column, query.Assign)
	}
	return query.Set(column, *v)
}

// MatchStore 比赛仓库
type MatchStore struct {
	pool   *database.Pool
	logger common.Logger
	now    func() time.Time
}

// NewMatchStore 创建比赛仓库
func NewMatchStore(pool *database.Pool, logger common.Logger) *MatchStore {
	return &MatchStore{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// List 按条件分页查询比赛, Total 与 Rows 使用同一组过滤条件
func (s *MatchStore) List(ctx context.Context, filter MatchFilter, page query.Page, order MatchOrder) (*MatchList, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	orderBy, ok := matchOrderSQL[order]
	if !ok {
		orderBy = matchOrderSQL[OrderDate]
	}
	if page.Limit <= 0 {
		page.Limit = DefaultPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	clauses := filter.clauses()
	countStmt, err := query.Count("SELECT COUNT(*) FROM matches", clauses)
	if err != nil {
		return nil, common.Internal("build count query", err)
	}
	listStmt, err := query.Select("SELECT "+database.MatchColumns+" FROM matches", clauses, orderBy, &page)
	if err != nil {
		return nil, common.Internal("build list query", err)
	}

	result := &MatchList{Rows: []database.Match{}}
	err = s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		if err := q.QueryRowContext(ctx, countStmt.SQL, countStmt.Args...).Scan(&result.Total); err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx, listStmt.SQL, listStmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m database.Match
			if err := rows.Scan(m.ScanTargets()...); err != nil {
				return err
			}
			result.Rows = append(result.Rows, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return result, nil
}

// GetByID 获取单场比赛
func (s *MatchStore) GetByID(ctx context.Context, id uuid.UUID) (*database.Match, error) {
	var m database.Match
	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx,
			"SELECT "+database.MatchColumns+" FROM matches WHERE id = $1", id,
		).Scan(m.ScanTargets()...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NotFound("match")
		}
		return nil, database.Classify(err)
	}
	return &m, nil
}

// Create 创建比赛, 日期必须在未来
func (s *MatchStore) Create(ctx context.Context, in MatchInput) (*database.Match, error) {
	if in.Type == "" {
		in.Type = database.MatchTypeChampionship
	}
	if in.Status == "" {
		in.Status = database.MatchStatusScheduled
	}
	isHome := true
	if in.IsHome != nil {
		isHome = *in.IsHome
	}

	fields := map[string]string{}
	checkText(fields, "opponent", &in.Opponent, 2, 100, true)
	checkText(fields, "location", &in.Location, 2, 200, true)
	if in.Date.IsZero() {
		fields["date"] = "required"
	} else if !in.Date.After(s.now()) {
		fields["date"] = "must be in the future"
	}
	checkEnum(fields, "type", &in.Type, database.MatchTypes)
	checkEnum(fields, "status", &in.Status, database.MatchStatuses)
	checkDescription(fields, in.Description)
	checkScores(fields, in.Status, in.ScoreTeam, in.ScoreOpponent)
	if len(fields) > 0 {
		return nil, common.Validation(fields)
	}

	var m database.Match
	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx, `
			INSERT INTO matches (id, opponent, location, date, is_home, type, status, description,
			                     score_team, score_opponent, man_of_match_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+database.MatchColumns,
			uuid.New(), in.Opponent, in.Location, in.Date, isHome, in.Type, in.Status, in.Description,
			in.ScoreTeam, in.ScoreOpponent, in.ManOfMatchID,
		).Scan(m.ScanTargets()...)
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	s.logger.Info("Created match %s vs %s at %s", m.ID, m.Opponent, m.Date.Format(time.RFC3339))
	return &m, nil
}

// Update 部分更新比赛. 已结束的比赛不能改期, 新日期必须在未来.
func (s *MatchStore) Update(ctx context.Context, id uuid.UUID, patch MatchPatch) (*database.Match, error) {
	fields := map[string]string{}
	checkText(fields, "opponent", patch.Opponent, 2, 100, false)
	checkText(fields, "location", patch.Location, 2, 200, false)
	checkEnum(fields, "type", patch.Type, database.MatchTypes)
	checkEnum(fields, "status", patch.Status, database.MatchStatuses)
	checkDescription(fields, patch.Description)
	if len(fields) > 0 {
		return nil, common.Validation(fields)
	}

	var updated database.Match
	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		current, err := lockMatch(ctx, q, id)
		if err != nil {
			return err
		}

		if patch.Date != nil {
			if current.Status == database.MatchStatusCompleted {
				return common.InvalidTransition("cannot change the date of a completed match")
			}
			if !patch.Date.After(s.now()) {
				return common.InvalidTransition("match date must be in the future")
			}
		}

		status := current.Status
		if patch.Status != nil {
			status = *patch.Status
		}
		scoreFields := map[string]string{}
		checkScores(scoreFields, status, patch.ScoreTeam, patch.ScoreOpponent)
		if len(scoreFields) > 0 {
			return common.Validation(scoreFields)
		}

		touch := []string{"updated_at = NOW()"}
		// 离开 completed 时清空比分
		if status != database.MatchStatusCompleted && (current.ScoreTeam != nil || current.ScoreOpponent != nil) {
			touch = append(touch, "score_team = NULL", "score_opponent = NULL")
		}

		stmt, err := query.Update("matches", patch.assigns(), touch,
			query.Filter("id", query.Equals, id), database.MatchColumns)
		if errors.Is(err, query.ErrEmptyUpdate) {
			return common.EmptyUpdate()
		}
		if err != nil {
			return common.Internal("build update query", err)
		}

		return q.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(updated.ScanTargets()...)
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	s.logger.Info("Updated match %s", id)
	return &updated, nil
}

// Delete 删除比赛及其出勤记录, 已结束的比赛不能删除
func (s *MatchStore) Delete(ctx context.Context, id uuid.UUID) (*database.Match, error) {
	var deleted *database.Match
	var removed int64
	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		current, err := lockMatch(ctx, q, id)
		if err != nil {
			return err
		}
		if current.Status == database.MatchStatusCompleted {
			return common.InvalidTransition("cannot delete a completed match")
		}

		res, err := q.ExecContext(ctx, "DELETE FROM presences WHERE match_id = $1", id)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM matches WHERE id = $1", id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	s.logger.Info("Deleted match %s (%d presences)", id, removed)
	return deleted, nil
}

// TogglePresenceWindow 切换出勤窗口, 过去的比赛不能打开
func (s *MatchStore) TogglePresenceWindow(ctx context.Context, id uuid.UUID) (*database.Match, error) {
	var updated database.Match
	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		current, err := lockMatch(ctx, q, id)
		if err != nil {
			return err
		}
		if !current.PresenceOpen && !current.Date.After(s.now()) {
			return common.InvalidTransition("cannot open presences for a past match")
		}

		return q.QueryRowContext(ctx, `
			UPDATE matches SET presence_open = NOT presence_open, updated_at = NOW()
			WHERE id = $1
			RETURNING `+database.MatchColumns, id,
		).Scan(updated.ScanTargets()...)
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	s.logger.Info("Presence window for match %s is now open=%t", id, updated.PresenceOpen)
	return &updated, nil
}

// CloseExpiredWindows 关闭已开赛比赛的出勤窗口, 返回被关闭的比赛
func (s *MatchStore) CloseExpiredWindows(ctx context.Context) ([]database.Match, error) {
	var closed []database.Match
	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			UPDATE matches SET presence_open = FALSE, updated_at = NOW()
			WHERE presence_open AND date <= $1
			RETURNING `+database.MatchColumns, s.now(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m database.Match
			if err := rows.Scan(m.ScanTargets()...); err != nil {
				return err
			}
			closed = append(closed, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return closed, nil
}

// lockMatch 在事务中锁定比赛行
func lockMatch(ctx context.Context, q database.Querier, id uuid.UUID) (*database.Match, error) {
	var m database.Match
	err := q.QueryRowContext(ctx,
		"SELECT "+database.MatchColumns+" FROM matches WHERE id = $1 FOR UPDATE", id,
	).Scan(m.ScanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFound("match")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// checkText 去除首尾空白并校验长度; required 为 false 时 nil 跳过
func checkText(fields map[string]string, name string, v *string, min, max int, required bool) {
	if v == nil {
		if required {
			fields[name] = "required"
		}
		return
	}
	*v = strings.TrimSpace(*v)
	n := utf8.RuneCountInString(*v)
	switch {
	case n == 0 && required:
		fields[name] = "required"
	case n < min || n > max:
		fields[name] = fmt.Sprintf("must be between %d and %d characters", min, max)
	}
}

func checkEnum(fields map[string]string, name string, v *string, set []string) {
	if v != nil && !database.OneOf(*v, set) {
		fields[name] = "must be one of " + strings.Join(set, ", ")
	}
}

func checkDescription(fields map[string]string, v *string) {
	if v != nil && utf8.RuneCountInString(*v) > 1000 {
		fields["description"] = "must be at most 1000 characters"
	}
}

// checkScores 比分非负, 且只允许在比赛状态为 completed 时设置
func checkScores(fields map[string]string, status string, team, opponent *int) {
	for name, v := range map[string]*int{"scoreTeam": team, "scoreOpponent": opponent} {
		if v == nil {
			continue
		}
		switch {
		case *v < 0:
			fields[name] = "must be non-negative"
		case status != database.MatchStatusCompleted:
			fields[name] = "only allowed for completed matches"
		}
	}
}
