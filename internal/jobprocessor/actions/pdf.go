package actions

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/corvidworks/hive/internal/models"
)

// summarizePdfHandler renders the job's accumulated action results into a
// one-page PDF report (SPEC_FULL section 11/12's second artifact producer),
// using the same fpdf setup idiom as the teacher's markdown-to-PDF service
// without its full markdown renderer, since a summary table needs nothing
// more than a title and a results table.
func summarizePdfHandler() Handler {
	return func(ctx context.Context, action models.Action) (map[string]interface{}, error) {
		title, _ := action.Parameters["title"].(string)
		if title == "" {
			title = "Job Summary"
		}
		prior, _ := action.Parameters["_priorResults"].([]models.ActionResult)

		data, err := renderSummaryPDF(title, prior)
		if err != nil {
			return nil, fmt.Errorf("summarizePdf: %w", err)
		}

		return map[string]interface{}{
			"contentType":   "application/pdf",
			"size":          len(data),
			"actions":       len(prior),
			"_artifactData": data,
		}, nil
	}
}

func renderSummaryPDF(title string, results []models.ActionResult) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(60, 8, "Action", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Success", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 8, "Duration", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 8, "Error", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, r := range results {
		success := "yes"
		if !r.Success {
			success = "no"
		}
		pdf.CellFormat(60, 7, string(r.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, success, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 7, r.Duration.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 7, r.Error, "1", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
