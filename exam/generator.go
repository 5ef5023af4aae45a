package exam

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"quizzer-server/models"
	"quizzer-server/utils"
)

// ErrNoMistakes is returned by MistakesOnly when the latest attempt got every question right.
var ErrNoMistakes = errors.New("no wrong answers in the latest attempt")

// ErrNotTaken is returned by derivatives that need at least one attempt.
var ErrNotTaken = errors.New("test has no attempts yet")

// Derivative options
type Derivative struct {
	Now   time.Time
	Seed  int64
	NewID func() string
}

func (d Derivative) defaults(src models.Test) Derivative {
	if d.Now.IsZero() {
		d.Now = time.Now()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Seed == 0 {
		// Create a deterministic seed for this derivative based on source id and time
		d.Seed = utils.SeedFrom(fmt.Sprintf("%s:%d:%d", src.ID, len(src.Attempts), d.Now.UnixNano()))
	}
	return d
}

// CloneShuffled builds a fresh copy of src with the question order and every
// question's answer order shuffled. Attempts are not carried over.
func CloneShuffled(src models.Test, d Derivative) models.Test {
	d = d.defaults(src)
	r := rand.New(rand.NewSource(d.Seed))

	questions := models.CloneQuestions(src.Questions)
	r.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	for i := range questions {
		shuffleAnswers(r, questions[i].Answers)
	}
	log.Printf("Cloned test %s with seed %d", src.ID, d.Seed)
	return models.Test{
		ID:          d.NewID(),
		Name:        src.Name + " (new)",
		CreatedAt:   d.Now.UTC(),
		Questions:   questions,
		Attempts:    []models.Attempt{},
		FileContent: src.FileContent,
	}
}

// MistakesOnly builds a test from the questions the latest attempt got wrong,
// keeping their relative order and shuffling each question's answers.
func MistakesOnly(src models.Test, d Derivative) (models.Test, error) {
	latest, ok := src.LatestAttempt()
	if !ok {
		return models.Test{}, ErrNotTaken
	}
	wrong := WrongIndices(src.Questions, latest.SelectedAnswers)
	if len(wrong) == 0 {
		return models.Test{}, ErrNoMistakes
	}
	d = d.defaults(src)
	r := rand.New(rand.NewSource(d.Seed))

	questions := make([]models.Question, 0, len(wrong))
	for _, idx := range wrong {
		q := models.CloneQuestions(src.Questions[idx : idx+1])[0]
		shuffleAnswers(r, q.Answers)
		questions = append(questions, q)
	}
	return models.Test{
		ID:        d.NewID(),
		Name:      src.Name + " (weakness)",
		CreatedAt: d.Now.UTC(),
		Questions: questions,
		Attempts:  []models.Attempt{},
	}, nil
}

// ShuffledAnswers returns a shuffled copy of q's answers drawn from r.
func ShuffledAnswers(r *rand.Rand, q models.Question) []models.Answer {
	answers := append([]models.Answer(nil), q.Answers...)
	shuffleAnswers(r, answers)
	return answers
}

func shuffleAnswers(r *rand.Rand, answers []models.Answer) {
	r.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
}
