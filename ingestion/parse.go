package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"quizzer-server/models"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrExtraction      = errors.New("text extraction failed")
	ErrGeneration      = errors.New("quiz generation failed")
	ErrCancelled       = errors.New("quiz generation was cancelled")
	ErrUnparseable     = errors.New("output is not a valid question list")
	ErrInvalidQuestion = errors.New("invalid question")
)

var (
	openFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*$")
	closeFence = regexp.MustCompile("^\\s*```$")
)

var quoteReplacer = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`, "\u2033", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'", "\u2032", "'",
	"\ufeff", "",
)

// NormalizeQuotes rewrites typographic quotes to ASCII quotes, drops byte
// order marks and puts the text in NFC.
func NormalizeQuotes(s string) string {
	return norm.NFC.String(quoteReplacer.Replace(s))
}

// StripFences removes a leading ``` or ```json line and a trailing ``` line,
// then trims the result.
func StripFences(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && openFence.MatchString(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) > 0 && closeFence.MatchString(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseQuestions decodes a JSON array of questions and validates it. The
// returned text is the cleaned input, which callers keep for repair when
// parsing fails.
func ParseQuestions(raw string) ([]models.Question, string, error) {
	cleaned := StripFences(NormalizeQuotes(raw))
	questions, err := decodeQuestions(cleaned)
	if err != nil {
		return nil, cleaned, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return questions, cleaned, nil
}

func decodeQuestions(cleaned string) ([]models.Question, error) {
	if !strings.HasPrefix(cleaned, "[") {
		return nil, errors.New("JSON is not an array")
	}
	var questions []models.Question
	if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
		return nil, err
	}
	if err := Validate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Validate checks the shape every stored question must have: a statement,
// at least one answer and unique answer contents. Questions with no correct
// answer are accepted but logged.
func Validate(questions []models.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuestion)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Statement) == "" {
			return fmt.Errorf("%w: question %d has an empty statement", ErrInvalidQuestion, i+1)
		}
		if len(q.Answers) == 0 {
			return fmt.Errorf("%w: question %d has no answers", ErrInvalidQuestion, i+1)
		}
		seen := make(map[string]bool, len(q.Answers))
		for _, a := range q.Answers {
			if seen[a.Content] {
				return fmt.Errorf("%w: question %d repeats answer %q", ErrInvalidQuestion, i+1, a.Content)
			}
			seen[a.Content] = true
		}
		if q.CorrectCount() == 0 {
			log.Printf("Warning: question %d (%q) has no correct answer; an empty selection will score it", i+1, q.Statement)
		}
	}
	return nil
}
