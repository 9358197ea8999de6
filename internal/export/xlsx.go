package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/research"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary"
	HistorySheet = "Cycles"
)

var historyHeaders = []string{"Cycle", "Score", "Confidence", "Gaps found", "Searches", "Duration (s)"}

var gradeFill = map[research.Grade]string{
	research.GradeA: "C6EFCE",
	research.GradeB: "FFEB9C",
	research.GradeC: "FFC7CE",
	research.GradeD: "FF9999",
}

// ToXLSX writes res into a workbook at path with a summary sheet and a per-cycle
// history sheet. The .xlsx extension is added when missing; the final path is
// returned.
func ToXLSX(res *research.Result, path string, now time.Time) (string, error) {
	if res == nil {
		return "", fmt.Errorf("export: result is required")
	}

	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(HistorySheet); err != nil {
		return "", err
	}

	if err := writeSummary(f, res, now); err != nil {
		return "", fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeHistory(f, res.EvaluationHistory); err != nil {
		return "", fmt.Errorf("history sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving %s: %w", path, err)
	}
	return path, nil
}

func writeSummary(f *excelize.File, res *research.Result, now time.Time) error {
	sheet := SummarySheet
	if err := f.SetColWidth(sheet, "A", "A", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 80); err != nil {
		return err
	}

	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	j := res.FinalJudgment
	score := "n/a"
	if res.FinalScore != nil {
		score = fmt.Sprint(*res.FinalScore)
	}

	rows := [][2]any{
		{"Request ID", res.RequestID},
		{"Generated", now.Format(time.RFC3339)},
		{"Model", res.ModelVersion},
		{"Recommendation", string(j.Recommendation)},
		{"Reason", j.Reason},
		{"Final score", score},
		{"Confidence", string(res.FinalConfidence)},
		{"Cycles", res.TotalCycles},
		{"Searches", res.TotalSearches},
		{"Strengths", strings.Join(j.Strengths, "\n")},
		{"Concerns", strings.Join(j.Concerns, "\n")},
		{"Overall assessment", j.OverallAssessment},
	}

	for i, r := range rows {
		row := i + 1
		a, _ := excelize.CoordinatesToCellName(1, row)
		b, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(sheet, a, r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, b, r[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, a, a, label); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, b, b, wrap); err != nil {
			return err
		}
	}

	if color, ok := gradeFill[j.Recommendation]; ok {
		grade, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "B4", "B4", grade); err != nil {
			return err
		}
	}
	return nil
}

func writeHistory(f *excelize.File, history []research.CycleSummary) error {
	sheet := HistorySheet

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	for col, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, header); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "F", 14); err != nil {
		return err
	}

	for i, c := range history {
		values := []any{c.Cycle, c.Score, string(c.Confidence), c.GapsFound, c.SearchesPerformed, c.Duration}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
