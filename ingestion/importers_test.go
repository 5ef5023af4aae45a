package ingestion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

func TestDetectKind(t *testing.T) {
	tests := map[string]Kind{
		"slides.PDF":    KindPDF,
		"bank.json":     KindJSON,
		"bank.yml":      KindYAML,
		"bank.yaml":     KindYAML,
		"bank.csv":      KindCSV,
		"workbook.xlsx": KindXLSX,
	}
	for name, want := range tests {
		got, err := DetectKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := DetectKind("notes.docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTestName(t *testing.T) {
	assert.Equal(t, "Chapter 1", TestName("Chapter 1.pdf"))
	assert.Equal(t, "archive.tar", TestName("archive.tar.gz"))
	assert.Equal(t, "Untitled Test", TestName(".pdf"))
}

const csvBank = `statement,choice_1,correct_1,explain_1,choice_2,correct_2,explain_2,choice_3,correct_3,explain_3
2 + 2?,4,true,arithmetic,5,false,off by one,,,
Pick primes,2,x,,3,yes,,4,,even
`

func TestImportCSV(t *testing.T) {
	questions, err := ImportCSV(strings.NewReader(csvBank))
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "2 + 2?", questions[0].Statement)
	require.Len(t, questions[0].Answers, 2)
	assert.Equal(t, "off by one", questions[0].Answers[1].Explanation)
	assert.Equal(t, []string{"2", "3"}, questions[1].CorrectContents())
	assert.Len(t, questions[1].Answers, 3)
}

func TestImportCSVRejectsRowWithoutChoices(t *testing.T) {
	_, err := ImportCSV(strings.NewReader("Lonely question\n"))
	assert.ErrorIs(t, err, ErrInvalidQuestion)
}

func TestImportXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"statement", "choice_1", "correct_1", "explain_1", "choice_2", "correct_2", "explain_2"},
		{"Largest planet?", "Jupiter", "TRUE", "", "Mars", "FALSE", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	questions, err := ImportXLSX(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, []string{"Jupiter"}, questions[0].CorrectContents())
}

func TestImportYAMLMatchesJSON(t *testing.T) {
	fromJSON, _, err := ParseQuestions(validJSON)
	require.NoError(t, err)

	data, err := yaml.Marshal(fromJSON)
	require.NoError(t, err)
	fromYAML, err := ImportYAML(data)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}
