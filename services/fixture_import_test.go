package services

import (
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"team-presence/database"
	"team-presence/pkg/common"
)

func TestParseFixturesCSVWithFrenchHeaders(t *testing.T) {
	csv := "Adversaire;Date_match;Heure;Lieu;Type_match;Domicile\r\n" +
		"FC Rivals;2026-09-12;15:30;Stade Municipal;Championnat;oui\r\n" +
		";;;;;\r\n" +
		"AS Voisins;12/09/2026;18:00;Gymnase;Entraînement;non\r\n"

	rows, err := ParseFixtures("fixtures.csv", strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseFixtures failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Err != nil {
		t.Fatalf("Unexpected row error: %v", first.Err)
	}
	if first.Input.Opponent != "FC Rivals" || first.Input.Location != "Stade Municipal" {
		t.Errorf("Unexpected mapping: %+v", first.Input)
	}
	if !first.Input.Date.Equal(time.Date(2026, 9, 12, 15, 30, 0, 0, time.UTC)) {
		t.Errorf("Unexpected date: %v", first.Input.Date)
	}
	if first.Input.Type != database.MatchTypeChampionship {
		t.Errorf("Expected championship, got %q", first.Input.Type)
	}
	if first.Input.IsHome == nil || !*first.Input.IsHome {
		t.Errorf("Expected home match")
	}

	second := rows[1]
	if second.Line != 4 {
		t.Errorf("Expected line 4, got %d", second.Line)
	}
	if second.Input.Type != database.MatchTypeTraining {
		t.Errorf("Expected training, got %q", second.Input.Type)
	}
	if second.Input.IsHome == nil || *second.Input.IsHome {
		t.Errorf("Expected away match")
	}
}

func TestParseFixturesCommaDelimited(t *testing.T) {
	csv := "opponent,date,location\nFC Rivals,2026-09-12T15:30:00Z,Stade\n"

	rows, err := ParseFixtures("fixtures.CSV", strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseFixtures failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Err != nil {
		t.Fatalf("Unexpected rows: %+v", rows)
	}
}

func TestParseFixturesBadDateIsRowError(t *testing.T) {
	csv := "opponent,date,location\nFC Rivals,someday,Stade\n"

	rows, err := ParseFixtures("fixtures.csv", strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseFixtures failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Err == nil {
		t.Fatalf("Expected a row error, got %+v", rows)
	}
}

func TestParseFixturesMissingColumn(t *testing.T) {
	_, err := ParseFixtures("fixtures.csv", strings.NewReader("opponent,date\nA,2026-01-01\n"), time.UTC)
	if !common.IsKind(err, common.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestParseFixturesUnsupportedType(t *testing.T) {
	_, err := ParseFixtures("fixtures.pdf", strings.NewReader(""), time.UTC)
	if !common.IsKind(err, common.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestParseFixturesXLSX(t *testing.T) {
	f := excelize.NewFile()
	sh := f.GetSheetName(0)
	header := []string{"Opponent", "Date", "Time", "Location", "Type", "Home"}
	data := []string{"FC Rivals", "2026-10-03", "20:00", "Arena", "cup", "false"}
	if err := f.SetSheetRow(sh, "A1", &header); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow(sh, "A2", &data); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := ParseFixtures("fixtures.xlsx", buf, time.UTC)
	if err != nil {
		t.Fatalf("ParseFixtures failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Err != nil {
		t.Fatalf("Unexpected rows: %+v", rows)
	}
	in := rows[0].Input
	if in.Type != database.MatchTypeCup || in.IsHome == nil || *in.IsHome {
		t.Errorf("Unexpected mapping: %+v", in)
	}
}
