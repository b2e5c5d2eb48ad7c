package web

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/pkg/query"
	"team-presence/services"
)

// 前端 datetime-local 控件提交的格式
var matchDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// maxPage 保证 (page-1)*limit 不溢出
const maxPage = math.MaxInt32 / services.MaxPageLimit

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type matchListResponse struct {
	Matches    []database.Match `json:"matches"`
	Pagination pagination       `json:"pagination"`
}

type matchDetail struct {
	*database.Match
	Presences []database.RosterEntry `json:"presences"`
	Stats     database.RosterStats   `json:"stats"`
}

// matchRequest 创建和修改共用的请求体
type matchRequest struct {
	Opponent      *string `json:"opponent"`
	Location      *string `json:"location"`
	Date          *string `json:"date"`
	IsHome        *bool   `json:"isHome"`
	Type          *string `json:"type"`
	Status        *string `json:"status"`
	Description   *string `json:"description"`
	ScoreTeam     *int    `json:"scoreTeam"`
	ScoreOpponent *int    `json:"scoreOpponent"`
	ManOfMatchID  *string `json:"manOfMatchId"`
}

// parsed 解析日期和 UUID 字段
func (req matchRequest) parsed(loc *time.Location) (*time.Time, *uuid.UUID, error) {
	fields := map[string]string{}

	var date *time.Time
	if req.Date != nil {
		if t, ok := parseMatchDate(*req.Date, loc); ok {
			date = &t
		} else {
			fields["date"] = "must be an RFC 3339 date-time"
		}
	}

	var motm *uuid.UUID
	if req.ManOfMatchID != nil && *req.ManOfMatchID != "" {
		if id, err := uuid.Parse(*req.ManOfMatchID); err == nil {
			motm = &id
		} else {
			fields["manOfMatchId"] = "must be a UUID"
		}
	}

	if len(fields) > 0 {
		return nil, nil, common.Validation(fields)
	}
	return date, motm, nil
}

func parseMatchDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range matchDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDateParam 查询参数日期, 纯日期的 dateTo 包含当天
func parseDateParam(s string, loc *time.Location, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, true
}

// parseListQuery 解析列表查询参数
func (s *Server) parseListQuery(r *http.Request) (services.MatchFilter, int, int, services.MatchOrder, error) {
	q := r.URL.Query()
	fields := map[string]string{}
	var filter services.MatchFilter

	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("type"); v != "" {
		filter.Type = &v
	}
	if v := q.Get("isHome"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["isHome"] = "must be true or false"
		} else {
			filter.IsHome = &b
		}
	}
	if v := q.Get("dateFrom"); v != "" {
		if t, ok := parseDateParam(v, s.location, false); ok {
			filter.DateFrom = &t
		} else {
			fields["dateFrom"] = "must be RFC 3339 or YYYY-MM-DD"
		}
	}
	if v := q.Get("dateTo"); v != "" {
		if t, ok := parseDateParam(v, s.location, true); ok {
			filter.DateTo = &t
		} else {
			fields["dateTo"] = "must be RFC 3339 or YYYY-MM-DD"
		}
	}

	page, limit := 1, services.DefaultPageLimit
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil || n < 1:
			fields["page"] = "must be a positive integer"
		case n > maxPage:
			fields["page"] = "must be at most " + strconv.Itoa(maxPage)
		default:
			page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > services.MaxPageLimit {
			fields["limit"] = "must be between 1 and " + strconv.Itoa(services.MaxPageLimit)
		} else {
			limit = n
		}
	}

	order, err := services.ParseMatchOrder(q.Get("sort"))
	if err != nil {
		fields["sort"] = "must be one of date, date_desc, created_desc"
	}

	if len(fields) > 0 {
		return filter, 0, 0, "", common.Validation(fields)
	}
	if err := filter.Validate(); err != nil {
		return filter, 0, 0, "", err
	}
	return filter, page, limit, order, nil
}

// handleListMatches 比赛列表
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	filter, page, limit, order, err := s.parseListQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.matches.List(r.Context(), filter, query.Page{Limit: limit, Offset: (page - 1) * limit}, order)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows := list.Rows
	if rows == nil {
		rows = []database.Match{}
	}
	writeJSON(w, http.StatusOK, matchListResponse{
		Matches: rows,
		Pagination: pagination{
			Page:  page,
			Limit: limit,
			Total: list.Total,
			Pages: (list.Total + limit - 1) / limit,
		},
	})
}

// handleGetMatch 比赛详情和出勤名单
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	match, err := s.matches.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roster, err := s.presences.Roster(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// 公开接口不返回邮箱
	presences := make([]database.RosterEntry, len(roster.Presences))
	for i, e := range roster.Presences {
		e.Email = ""
		presences[i] = e
	}

	writeJSON(w, http.StatusOK, matchDetail{
		Match:     match,
		Presences: presences,
		Stats:     roster.Stats,
	})
}

// handleCreateMatch 创建比赛
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, motm, err := req.parsed(s.location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	in := services.MatchInput{
		IsHome:        req.IsHome,
		Description:   req.Description,
		ScoreTeam:     req.ScoreTeam,
		ScoreOpponent: req.ScoreOpponent,
		ManOfMatchID:  motm,
	}
	if req.Opponent != nil {
		in.Opponent = *req.Opponent
	}
	if req.Location != nil {
		in.Location = *req.Location
	}
	if date != nil {
		in.Date = *date
	}
	if req.Type != nil {
		in.Type = *req.Type
	}
	if req.Status != nil {
		in.Status = *req.Status
	}

	match, err := s.matches.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventMatchCreated, match.ID, match)
	writeJSON(w, http.StatusCreated, match)
}

// handleUpdateMatch 修改比赛
func (s *Server) handleUpdateMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, motm, err := req.parsed(s.location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	match, err := s.matches.Update(r.Context(), id, services.MatchPatch{
		Opponent:      req.Opponent,
		Location:      req.Location,
		Date:          date,
		IsHome:        req.IsHome,
		Type:          req.Type,
		Status:        req.Status,
		Description:   req.Description,
		ScoreTeam:     req.ScoreTeam,
		ScoreOpponent: req.ScoreOpponent,
		ManOfMatchID:  motm,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventMatchUpdated, match.ID, match)
	writeJSON(w, http.StatusOK, match)
}

// handleDeleteMatch 删除比赛
func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	match, err := s.matches.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventMatchDeleted, match.ID, match)
	writeJSON(w, http.StatusOK, ackResponse("match deleted"))
}

// handleTogglePresence 开关出勤窗口
func (s *Server) handleTogglePresence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "match")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	match, err := s.matches.TogglePresenceWindow(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, services.EventPresenceWindow, match.ID, match)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           match.ID,
		"presenceOpen": match.PresenceOpen,
	})
}

// handleImportMatches 从 CSV / XLSX 导入赛程
func (s *Server) handleImportMatches(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImportSize)
	if err := r.ParseMultipartForm(services.MaxImportSize); err != nil {
		s.writeError(w, r, common.Validation(map[string]string{"file": "multipart upload required (max 10MB)"}))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, common.Validation(map[string]string{"file": "required"}))
		return
	}
	defer file.Close()

	rows, err := services.ParseFixtures(header.Filename, file, s.location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result := services.ImportFixtures(r.Context(), s.matches, rows)
	s.logger.Info("Imported %d matches from %s (%d failed)", result.Imported, header.Filename, result.Failed)
	writeJSON(w, http.StatusOK, result)
}
