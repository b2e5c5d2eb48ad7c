package database

import (
	"time"

	"github.com/google/uuid"
)

// 比赛类型
const (
	MatchTypeChampionship = "championship"
	MatchTypeCup          = "cup"
	MatchTypeFriendly     = "friendly"
	MatchTypeTraining     = "training"
)

// 比赛状态
const (
	MatchStatusScheduled = "scheduled"
	MatchStatusOngoing   = "ongoing"
	MatchStatusCompleted = "completed"
	MatchStatusCancelled = "cancelled"
	MatchStatusPostponed = "postponed"
)

// 出勤状态
const (
	PresencePresent = "present"
	PresenceAbsent  = "absent"
	PresenceUnknown = "unknown"
)

// 用户角色
const (
	RoleAdmin  = "admin"
	RoleCoach  = "coach"
	RolePlayer = "player"
	RoleStaff  = "staff"
)

var (
	MatchTypes       = []string{MatchTypeChampionship, MatchTypeCup, MatchTypeFriendly, MatchTypeTraining}
	MatchStatuses    = []string{MatchStatusScheduled, MatchStatusOngoing, MatchStatusCompleted, MatchStatusCancelled, MatchStatusPostponed}
	PresenceStatuses = []string{PresencePresent, PresenceAbsent, PresenceUnknown}
	Roles            = []string{RoleAdmin, RoleCoach, RolePlayer, RoleStaff}

	// RosterRoles 出现在出勤名单中的角色
	RosterRoles = []string{RolePlayer, RoleCoach, RoleStaff}
)

// OneOf 判断 v 是否在 set 中
func OneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Match 比赛
type Match struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Opponent      string     `db:"opponent" json:"opponent"`
	Location      string     `db:"location" json:"location"`
	Date          time.Time  `db:"date" json:"date"`
	IsHome        bool       `db:"is_home" json:"isHome"`
	Type          string     `db:"type" json:"type"`
	Status        string     `db:"status" json:"status"`
	Description   *string    `db:"description" json:"description,omitempty"`
	ScoreTeam     *int       `db:"score_team" json:"scoreTeam"`
	ScoreOpponent *int       `db:"score_opponent" json:"scoreOpponent"`
	PresenceOpen  bool       `db:"presence_open" json:"presenceOpen"`
	ManOfMatchID  *uuid.UUID `db:"man_of_match_id" json:"manOfMatchId"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// MatchColumns 与 Match.ScanTargets 顺序一致
const MatchColumns = `id, opponent, location, date, is_home, type, status, description,
	score_team, score_opponent, presence_open, man_of_match_id, created_at, updated_at`

// ScanTargets 返回 Scan 的目标指针, 顺序与 MatchColumns 一致
func (m *Match) ScanTargets() []any {
	return []any{
		&m.ID, &m.Opponent, &m.Location, &m.Date, &m.IsHome, &m.Type, &m.Status, &m.Description,
		&m.ScoreTeam, &m.ScoreOpponent, &m.PresenceOpen, &m.ManOfMatchID, &m.CreatedAt, &m.UpdatedAt,
	}
}

// User 团队成员
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	Role         string    `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// UserColumns 与 User.ScanTargets 顺序一致
const UserColumns = `id, email, password_hash, display_name, role, active, created_at, updated_at`

// ScanTargets 返回 Scan 的目标指针
func (u *User) ScanTargets() []any {
	return []any{&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt}
}

// CanManageMatches admin 与 coach 可以管理比赛
func (u *User) CanManageMatches() bool {
	return u.Role == RoleAdmin || u.Role == RoleCoach
}

// RosterEntry 名单中的一行 (用户 + 出勤状态)
type RosterEntry struct {
	UserID      uuid.UUID  `json:"userId"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

// RosterStats 出勤统计
type RosterStats struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Unknown int `json:"unknown"`
	Total   int `json:"total"`
}

// Roster 一场比赛的完整名单
type Roster struct {
	MatchID   uuid.UUID     `json:"matchId"`
	Presences []RosterEntry `json:"presences"`
	Stats     RosterStats   `json:"stats"`
}
