package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"team-presence/database"
	"team-presence/pkg/query"
	"team-presence/services"
)

const (
	icsTimeFormat = "20060102T150405Z"
	matchDuration = 2 * time.Hour
)

var icsEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\n", `\n`)

// handleCalendar 导出未来赛程为 iCalendar
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	status := database.MatchStatusScheduled
	filter := services.MatchFilter{Status: &status}

	var matches []database.Match
	for offset := 0; ; offset += services.MaxPageLimit {
		list, err := s.matches.List(r.Context(), filter,
			query.Page{Limit: services.MaxPageLimit, Offset: offset}, services.OrderDate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		matches = append(matches, list.Rows...)
		if len(list.Rows) < services.MaxPageLimit || offset+len(list.Rows) >= list.Total {
			break
		}
	}

	var buf bytes.Buffer
	writeCalendar(&buf, matches, time.Now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=matches.ics")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// writeCalendar 按 RFC 5545 写 VCALENDAR, 行以 CRLF 结尾
func writeCalendar(buf *bytes.Buffer, matches []database.Match, now time.Time) {
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(buf, format+"\r\n", args...)
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:-//team-presence//matches//EN")
	line("CALSCALE:GREGORIAN")

	stamp := now.UTC().Format(icsTimeFormat)
	for _, m := range matches {
		summary := "vs " + m.Opponent
		if !m.IsHome {
			summary = "@ " + m.Opponent
		}

		line("BEGIN:VEVENT")
		line("UID:match-%s@team-presence", m.ID)
		line("DTSTAMP:%s", stamp)
		line("DTSTART:%s", m.Date.UTC().Format(icsTimeFormat))
		line("DTEND:%s", m.Date.Add(matchDuration).UTC().Format(icsTimeFormat))
		line("SUMMARY:%s", icsEscaper.Replace(summary))
		line("LOCATION:%s", icsEscaper.Replace(m.Location))
		line("CATEGORIES:%s", strings.ToUpper(m.Type))
		if m.Description != nil && *m.Description != "" {
			line("DESCRIPTION:%s", icsEscaper.Replace(*m.Description))
		}
		line("END:VEVENT")
	}

	line("END:VCALENDAR")
}
