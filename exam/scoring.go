package exam

import (
	"quizzer-server/models"
	"quizzer-server/utils"
)

// IsCorrect reports whether the selected contents exactly match the correct
// contents of q. Order and duplicates do not matter and there is no partial credit.
//
// A question with no answer flagged correct is counted correct when nothing is
// selected, since both sets are empty. Ingestion logs such questions rather than
// rejecting them.
func IsCorrect(q models.Question, selected []string) bool {
	return utils.EqualSets(q.CorrectContents(), selected)
}

// Score counts the questions whose selection set equals the correct set.
// A question index missing from selections counts as an empty selection.
func Score(questions []models.Question, selections map[int][]string) int {
	score := 0
	for i, q := range questions {
		if IsCorrect(q, selections[i]) {
			score++
		}
	}
	return score
}

// WrongIndices returns the indices of questions answered incorrectly, in order.
func WrongIndices(questions []models.Question, selections map[int][]string) []int {
	var wrong []int
	for i, q := range questions {
		if !IsCorrect(q, selections[i]) {
			wrong = append(wrong, i)
		}
	}
	return wrong
}
