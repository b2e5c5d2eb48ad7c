package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"team-presence/database"
	"team-presence/pkg/common"
)

// MaxImportSize 导入文件大小上限
const MaxImportSize = 10 << 20

// FixtureRow 导入文件中的一行
type FixtureRow struct {
	Line  int
	Input MatchInput
	Err   error
}

// ImportError 单行导入失败
type ImportError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportResult 导入结果
type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors"`
}

// headerAliases 表头别名 (含原有的法语列名)
var headerAliases = map[string]string{
	"opponent":    "opponent",
	"adversaire":  "opponent",
	"adversary":   "opponent",
	"date":        "date",
	"datematch":   "date",
	"matchdate":   "date",
	"time":        "time",
	"heure":       "time",
	"kickoff":     "time",
	"location":    "location",
	"lieu":        "location",
	"venue":       "location",
	"type":        "type",
	"typematch":   "type",
	"home":        "home",
	"ishome":      "home",
	"domicile":    "home",
	"description": "description",
	"notes":       "description",
}

// typeAliases 法语比赛类型
var typeAliases = map[string]string{
	"championnat":  database.MatchTypeChampionship,
	"coupe":        database.MatchTypeCup,
	"amical":       database.MatchTypeFriendly,
	"entrainement": database.MatchTypeTraining,
}

var fixtureDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"02/01/2006",
}

// ParseFixtures 解析 CSV 或 XLSX 赛程文件, 本地时间按 loc 解释
func ParseFixtures(filename string, r io.Reader, loc *time.Location) ([]FixtureRow, error) {
	if loc == nil {
		loc = time.UTC
	}

	var records [][]string
	var err error
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, common.Validation(map[string]string{"file": "unsupported file type " + ext})
	}
	if err != nil {
		return nil, common.Validation(map[string]string{"file": err.Error()})
	}
	if len(records) == 0 {
		return nil, common.Validation(map[string]string{"file": "empty file"})
	}

	headers := normHeaders(records[0])
	for _, required := range []string{"opponent", "date", "location"} {
		if _, ok := headers[required]; !ok {
			return nil, common.Validation(map[string]string{"file": "missing column " + required})
		}
	}

	var rows []FixtureRow
	for i := 1; i < len(records); i++ {
		if strings.TrimSpace(strings.Join(records[i], "")) == "" {
			continue
		}
		in, err := rowToInput(headers, records[i], loc)
		rows = append(rows, FixtureRow{Line: i + 1, Input: in, Err: err})
	}
	return rows, nil
}

// MatchCreator 导入时用于创建比赛
type MatchCreator interface {
	Create(ctx context.Context, in MatchInput) (*database.Match, error)
}

// ImportFixtures 逐行创建比赛, 单行失败不影响其他行
func ImportFixtures(ctx context.Context, store MatchCreator, rows []FixtureRow) ImportResult {
	result := ImportResult{Errors: []ImportError{}}
	for _, row := range rows {
		err := row.Err
		if err == nil {
			_, err = store.Create(ctx, row.Input)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{Line: row.Line, Error: err.Error()})
			continue
		}
		result.Imported++
	}
	return result
}

func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(io.LimitReader(r, MaxImportSize))
	// 根据首行猜测分隔符
	line, _ := br.ReadString('\n')
	reader := csv.NewReader(io.MultiReader(strings.NewReader(line), br))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if strings.Count(line, ";") > strings.Count(line, ",") {
		reader.Comma = ';'
	}
	return reader.ReadAll()
}

func readXLSX(r io.Reader) ([][]string, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxImportSize))
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("no sheet")
	}
	return f.GetRows(sheet)
}

// normHeaders 表头转小写, 只保留字母数字, 映射别名, 返回 列名 -> 下标
func normHeaders(hdr []string) map[string]int {
	m := make(map[string]int, len(hdr))
	for i, h := range hdr {
		var b strings.Builder
		for _, r := range strings.ToLower(strings.TrimSpace(h)) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(foldAccent(r))
			}
		}
		key, ok := headerAliases[b.String()]
		if !ok {
			continue
		}
		if _, dup := m[key]; !dup {
			m[key] = i
		}
	}
	return m
}

func foldAccent(r rune) rune {
	switch r {
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'à', 'â':
		return 'a'
	case 'î', 'ï':
		return 'i'
	case 'ô':
		return 'o'
	case 'û', 'ù':
		return 'u'
	case 'ç':
		return 'c'
	}
	return r
}

func rowToInput(h map[string]int, row []string, loc *time.Location) (MatchInput, error) {
	get := func(key string) string {
		if i, ok := h[key]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	in := MatchInput{
		Opponent: get("opponent"),
		Location: get("location"),
	}

	date, err := parseFixtureDate(get("date"), get("time"), loc)
	if err != nil {
		return in, err
	}
	in.Date = date

	if t := strings.ToLower(get("type")); t != "" {
		var b strings.Builder
		for _, r := range t {
			b.WriteRune(foldAccent(r))
		}
		t = b.String()
		if alias, ok := typeAliases[t]; ok {
			t = alias
		}
		in.Type = t
	}

	if s := get("home"); s != "" {
		home, err := parseBool(s)
		if err != nil {
			return in, err
		}
		in.IsHome = &home
	}

	if d := get("description"); d != "" {
		in.Description = &d
	}
	return in, nil
}

func parseFixtureDate(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	value := date
	if clock != "" {
		value = date + " " + clock
	}
	for _, layout := range fixtureDateLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "oui", "o", "home", "domicile":
		return true, nil
	case "0", "false", "no", "n", "non", "away", "exterieur", "extérieur":
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("invalid home value %q", s)
}
