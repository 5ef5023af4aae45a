package exam

import (
	"fmt"
	"math"

	"quizzer-server/models"
)

// Summary is what the summary screen shows for the latest attempt.
type Summary struct {
	TestID       string         `json:"testId"`
	Name         string         `json:"name"`
	Score        int            `json:"score"`
	Total        int            `json:"total"`
	Accuracy     int            `json:"accuracy"` // percent, rounded
	Duration     int            `json:"duration"`
	Time         string         `json:"time"` // "X min Y sec"
	AttemptCount int            `json:"attemptCount"`
	Latest       models.Attempt `json:"latest"`
	Questions    []QuestionStat `json:"questions"`
}

// QuestionStat is how often a question was answered correctly across every attempt.
type QuestionStat struct {
	Index    int     `json:"index"`
	Correct  int     `json:"correct"`
	Attempts int     `json:"attempts"`
	Rate     float64 `json:"rate"`
}

// Summarize describes the latest attempt of t. It fails when t was never taken.
func Summarize(t models.Test) (Summary, error) {
	latest, ok := t.LatestAttempt()
	if !ok {
		return Summary{}, ErrNotTaken
	}
	return Summary{
		TestID:       t.ID,
		Name:         t.Name,
		Score:        latest.Score,
		Total:        len(t.Questions),
		Accuracy:     Accuracy(latest.Score, len(t.Questions)),
		Duration:     latest.Duration,
		Time:         FormatDuration(latest.Duration),
		AttemptCount: len(t.Attempts),
		Latest:       latest.Clone(),
		Questions:    QuestionStats(t),
	}, nil
}

// Accuracy is score/total as a rounded percentage; an empty test is 0%.
func Accuracy(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

// FormatDuration renders seconds as "X min Y sec".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d min %d sec", seconds/60, seconds%60)
}

// QuestionStats computes per-question correctness over all attempts of t.
func QuestionStats(t models.Test) []QuestionStat {
	stats := make([]QuestionStat, len(t.Questions))
	for i := range stats {
		stats[i].Index = i
	}
	for _, a := range t.Attempts {
		for i, q := range t.Questions {
			stats[i].Attempts++
			if IsCorrect(q, a.SelectedAnswers[i]) {
				stats[i].Correct++
			}
		}
	}
	for i := range stats {
		if stats[i].Attempts > 0 {
			stats[i].Rate = float64(stats[i].Correct) / float64(stats[i].Attempts)
		}
	}
	return stats
}
