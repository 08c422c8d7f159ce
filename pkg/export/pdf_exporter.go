package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Transcript holds the data rendered into a grade report document.
type Transcript struct {
	StudentName string
	CourseName  string
	ProgramName string
	TeacherName string
	Scores      []float64
	Average     float64
	Observation string
}

// PDFExporter renders transcripts into a single-page PDF document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderTranscript creates a one-page grade report for an enrollment.
func (e *PDFExporter) RenderTranscript(t Transcript) ([]byte, error) {
	if len(t.Scores) == 0 {
		return nil, fmt.Errorf("transcript requires at least one score")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Grade Report: %s", t.StudentName), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Course: %s", t.CourseName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Program: %s", t.ProgramName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Teacher: %s", t.TeacherName), "", 1, "", false, 0, "")
	pdf.Ln(6)

	headers := []string{"Course", "Unit 1", "Unit 2", "Unit 3", "Observation"}
	widths := []float64{60, 30, 30, 30, 30}

	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(widths[0], 8, t.CourseName, "1", 0, "", false, 0, "")
	for unit := 0; unit < 3; unit++ {
		value := "-"
		if unit < len(t.Scores) {
			value = fmt.Sprintf("%.2f", t.Scores[unit])
		}
		pdf.CellFormat(widths[unit+1], 8, value, "1", 0, "C", false, 0, "")
	}
	pdf.CellFormat(widths[4], 8, t.Observation, "1", 0, "C", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Overall Average: %.2f", t.Average), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}
