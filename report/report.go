// Package report exports scan results as a spreadsheet or JSON document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dupfinder/types"

	"github.com/xuri/excelize/v2"
)

const (
	groupsSheet  = "Duplicates"
	summarySheet = "Summary"
)

// Write exports result to path. The format follows the extension: .xlsx or
// .json.
func Write(path string, result *types.ScanResult) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, result)
	case ".json":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteJSON(f, result); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return fmt.Errorf("unsupported report format %q (use .xlsx or .json)", filepath.Ext(path))
}

// Summary is the header of a JSON report
type Summary struct {
	ScannedAt        time.Time `json:"scanned_at"`
	DurationMillis   int64     `json:"duration_ms"`
	TotalImages      int       `json:"total_images"`
	Groups           int       `json:"groups"`
	TotalDuplicates  int       `json:"total_duplicates"`
	PotentialSavings int64     `json:"potential_savings"`
	Unhashed         []string  `json:"unhashed,omitempty"`
}

// Document is the JSON report layout
type Document struct {
	Summary Summary                `json:"summary"`
	Groups  []types.DuplicateGroup `json:"groups"`
}

// NewSummary extracts the summary of result
func NewSummary(result *types.ScanResult) Summary {
	return Summary{
		ScannedAt:        result.Timestamp,
		DurationMillis:   result.Duration.Milliseconds(),
		TotalImages:      result.TotalImages,
		Groups:           len(result.Groups),
		TotalDuplicates:  result.TotalDuplicates,
		PotentialSavings: result.PotentialSavings,
		Unhashed:         result.Unhashed,
	}
}

// WriteJSON writes an indented JSON report
func WriteJSON(w io.Writer, result *types.ScanResult) error {
	doc := Document{Summary: NewSummary(result), Groups: result.Groups}
	if doc.Groups == nil {
		doc.Groups = []types.DuplicateGroup{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var groupHeader = []interface{}{
	"Group", "Kind", "Score", "Keep", "Path", "Size", "Modified", "Width", "Height", "Folder", "MIME type", "Group savings",
}

// WriteXLSX writes one row per image, groups in ranked order with the image
// to keep first, plus a summary sheet
func WriteXLSX(path string, result *types.ScanResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", groupsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(groupsSheet, "A1", &groupHeader); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(groupHeader))
	if err := f.SetCellStyle(groupsSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	row := 2
	for gi, g := range result.Groups {
		for ii, img := range g.Images {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			keep := ""
			if ii == 0 {
				keep = "yes"
			}
			values := []interface{}{
				gi + 1,
				g.Kind.String(),
				g.Score,
				keep,
				img.Path,
				img.Size,
				time.UnixMilli(img.ModifiedAt).UTC().Format(time.RFC3339),
				img.Width,
				img.Height,
				img.Folder,
				img.MimeType,
				g.PotentialSavings,
			}
			if err := f.SetSheetRow(groupsSheet, cell, &values); err != nil {
				return fmt.Errorf("cannot write row %d: %w", row, err)
			}
			row++
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	s := NewSummary(result)
	summary := [][]interface{}{
		{"Scanned at", s.ScannedAt.UTC().Format(time.RFC3339)},
		{"Duration (ms)", s.DurationMillis},
		{"Images scanned", s.TotalImages},
		{"Duplicate groups", s.Groups},
		{"Duplicate images", s.TotalDuplicates},
		{"Potential savings (bytes)", s.PotentialSavings},
		{"Images without hashes", len(s.Unhashed)},
	}
	for i, r := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return err
	}

	return f.SaveAs(path)
}
