package domain

import (
	"strconv"
	"time"
)

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

type Quiz struct {
	Topic     string         `json:"topic,omitempty"`
	Questions []QuizQuestion `json:"questions"`
}

type QuizResult struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Topic          string            `json:"topic"`
	Score          int               `json:"score"`
	TotalQuestions int               `json:"totalQuestions"`
	Answers        map[string]string `json:"answers"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ScoreQuiz awards one point per question whose answer, keyed by the
// question's zero-based index, equals the correct option exactly.
func ScoreQuiz(questions []QuizQuestion, answers map[string]string) int {
	score := 0
	for i, q := range questions {
		got, ok := answers[strconv.Itoa(i)]
		if ok && got == q.CorrectAnswer {
			score++
		}
	}
	return score
}
