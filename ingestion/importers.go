package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"quizzer-server/models"
)

// Kind is an accepted upload type, derived from the file extension.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindJSON Kind = "json"
	KindYAML Kind = "yaml"
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
)

// DetectKind maps a file name to its Kind.
func DetectKind(filename string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".json":
		return KindJSON, nil
	case ".yaml", ".yml":
		return KindYAML, nil
	case ".csv":
		return KindCSV, nil
	case ".xlsx":
		return KindXLSX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
}

// TestName is the file name without its extension, or "Untitled Test".
func TestName(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" || name == "." {
		return "Untitled Test"
	}
	return name
}

// ImportYAML reads the same question list the JSON export produces, in YAML.
func ImportYAML(data []byte) ([]models.Question, error) {
	var questions []models.Question
	if err := yaml.Unmarshal([]byte(NormalizeQuotes(string(data))), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse YAML question list: %w", err)
	}
	if err := Validate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Tabular layout shared by CSV and XLSX imports: one question per row,
//
//	statement, choice_1, correct_1, explain_1, choice_2, correct_2, explain_2, ...
//
// An optional header row whose first cell is "statement" or "question_text" is skipped.
const tabularLeadColumns = 1

// ImportCSV reads a question bank in the tabular layout.
func ImportCSV(r io.Reader) ([]models.Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return rowsToQuestions(rows)
}

// ImportXLSX reads the first sheet of a workbook in the tabular layout.
func ImportXLSX(data []byte) ([]models.Question, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidQuestion)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheets[0], err)
	}
	return rowsToQuestions(rows)
}

func rowsToQuestions(rows [][]string) ([]models.Question, error) {
	var questions []models.Question
	for i, row := range rows {
		lineNum := i + 1
		if isBlankRow(row) {
			continue
		}
		first := strings.ToLower(strings.TrimSpace(row[0]))
		if i == 0 && (first == "statement" || first == "question_text") {
			continue
		}

		q := models.Question{Statement: NormalizeQuotes(strings.TrimSpace(row[0]))}
		for j := tabularLeadColumns; j < len(row); j += 3 {
			content := strings.TrimSpace(row[j])
			if content == "" {
				continue
			}
			a := models.Answer{Content: NormalizeQuotes(content)}
			if j+1 < len(row) {
				a.Correct = parseFlag(row[j+1])
			}
			if j+2 < len(row) {
				a.Explanation = NormalizeQuotes(strings.TrimSpace(row[j+2]))
			}
			q.Answers = append(q.Answers, a)
		}
		if q.Statement == "" {
			return nil, fmt.Errorf("%w: line %d has an empty statement", ErrInvalidQuestion, lineNum)
		}
		if len(q.Answers) == 0 {
			return nil, fmt.Errorf("%w: line %d has no choices", ErrInvalidQuestion, lineNum)
		}
		questions = append(questions, q)
	}
	if err := Validate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "x", "yes", "y":
		return true
	}
	return false
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
