package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/pkg/query"
)

// UserInput 注册输入, 密码已经过哈希
type UserInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

// UserPatch 管理员对用户的部分更新
type UserPatch struct {
	DisplayName *string
	Role        *string
	Active      *bool
}

// UserStore 用户仓库
type UserStore struct {
	pool   *database.Pool
	logger common.Logger
}

// NewUserStore 创建用户仓库
func NewUserStore(pool *database.Pool, logger common.Logger) *UserStore {
	return &UserStore{
		pool:   pool,
		logger: logger,
	}
}

// NormalizeEmail 邮箱统一小写存储
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create 创建用户, 第一个注册的用户成为 admin
func (s *UserStore) Create(ctx context.Context, in UserInput) (*database.User, error) {
	in.Email = NormalizeEmail(in.Email)
	fields := map[string]string{}
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		fields["email"] = "must be a valid email address"
	}
	checkText(fields, "displayName", &in.DisplayName, 2, 100, true)
	if in.PasswordHash == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return nil, common.Validation(fields)
	}

	var u database.User
	err := s.pool.Tx(ctx, func(ctx context.Context, q database.Querier) error {
		// 串行化并发注册, 保证只有一个首位用户
		if _, err := q.ExecContext(ctx, "LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return err
		}
		var count int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			return err
		}
		role := database.RolePlayer
		if count == 0 {
			role = database.RoleAdmin
		}

		return q.QueryRowContext(ctx, `
			INSERT INTO users (id, email, password_hash, display_name, role)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+database.UserColumns,
			uuid.New(), in.Email, in.PasswordHash, in.DisplayName, role,
		).Scan(u.ScanTargets()...)
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	s.logger.Info("Registered user %s (%s)", u.Email, u.Role)
	return &u, nil
}

// GetByEmail 按邮箱查询用户
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*database.User, error) {
	return s.getOne(ctx, "SELECT "+database.UserColumns+" FROM users WHERE lower(email) = $1", NormalizeEmail(email))
}

// GetByID 按 ID 查询用户
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*database.User, error) {
	return s.getOne(ctx, "SELECT "+database.UserColumns+" FROM users WHERE id = $1", id)
}

func (s *UserStore) getOne(ctx context.Context, sqlText string, arg any) (*database.User, error) {
	var u database.User
	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx, sqlText, arg).Scan(u.ScanTargets()...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NotFound("user")
		}
		return nil, database.Classify(err)
	}
	return &u, nil
}

// List 列出用户, role 为 nil 时返回全部
func (s *UserStore) List(ctx context.Context, role *string) ([]database.User, error) {
	if role != nil && !database.OneOf(*role, database.Roles) {
		return nil, common.Validation(map[string]string{"role": "must be one of " + strings.Join(database.Roles, ", ")})
	}

	stmt, err := query.Select("SELECT "+database.UserColumns+" FROM users",
		[]query.Clause{query.Opt("role", query.Equals, role)}, "display_name ASC, id ASC", nil)
	if err != nil {
		return nil, common.Internal("build user query", err)
	}

	users := []database.User{}
	err = s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u database.User
			if err := rows.Scan(u.ScanTargets()...); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return users, nil
}

// Update 部分更新用户资料或角色
func (s *UserStore) Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*database.User, error) {
	fields := map[string]string{}
	checkText(fields, "displayName", patch.DisplayName, 2, 100, false)
	checkEnum(fields, "role", patch.Role, database.Roles)
	if len(fields) > 0 {
		return nil, common.Validation(fields)
	}

	stmt, err := query.Update("users", []query.Clause{
		setOpt("display_name", patch.DisplayName),
		setOpt("role", patch.Role),
		setOpt("active", patch.Active),
	}, []string{"updated_at = NOW()"}, query.Filter("id", query.Equals, id), database.UserColumns)
	if errors.Is(err, query.ErrEmptyUpdate) {
		return nil, common.EmptyUpdate()
	}
	if err != nil {
		return nil, common.Internal("build user update", err)
	}

	var u database.User
	err = s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(u.ScanTargets()...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NotFound("user")
		}
		return nil, database.Classify(err)
	}

	s.logger.Info("Updated user %s (role=%s, active=%t)", u.ID, u.Role, u.Active)
	return &u, nil
}

// Delete 删除用户, 其出勤记录级联删除, 最佳球员引用置空
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	var affected int64
	err := s.pool.Run(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return database.Classify(err)
	}
	if affected == 0 {
		return common.NotFound("user")
	}

	s.logger.Info("Deleted user %s", id)
	return nil
}
