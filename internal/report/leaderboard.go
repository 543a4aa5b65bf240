// Package report renders progression data as spreadsheet exports.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-arena/internal/progress"
)

// ContentType is the MIME type of the workbooks written by this package.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var leaderboardHeader = []any{"Rank", "User", "XP"}

// SheetName returns the worksheet name used for board.
func SheetName(board progress.Board) string {
	if board == progress.BoardWeekly {
		return "Weekly"
	}
	return "Global"
}

// Filename returns the attachment filename for a board exported at t.
func Filename(board progress.Board, t time.Time) string {
	return fmt.Sprintf("leaderboard-%s-%s.xlsx", board, t.UTC().Format("2006-01-02"))
}

// WriteLeaderboard writes standings as a single-sheet XLSX workbook to w.
func WriteLeaderboard(w io.Writer, board progress.Board, standings []progress.Standing) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(board)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &leaderboardHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "C1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, s := range standings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{s.Rank, s.UserID, s.XP}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing rank %d: %w", s.Rank, err)
		}
	}

	if err := f.SetColWidth(sheet, "B", "B", 32); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
