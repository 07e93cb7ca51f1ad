package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/pkg/ai"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

// SubmitInput is a finished quiz as answered by the user. Answers are keyed
// by the zero-based question index.
type SubmitInput struct {
	Topic     string
	Questions []domain.QuizQuestion
	Answers   map[string]string
}

// GenerateQuiz asks the text generator for a quiz on topic.
func (a *App) GenerateQuiz(ctx context.Context, topic string) (domain.Quiz, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return domain.Quiz{}, ErrTopicRequired
	}
	quiz, err := ai.GenerateQuiz(ctx, a.generator, topic)
	switch {
	case err == nil:
		return quiz, nil
	case errors.Is(err, ai.ErrGeneratorUnavailable):
		return domain.Quiz{}, apperr.Wrap(ErrGenerator.Kind, ErrGenerator.Message, err)
	case errors.Is(err, ai.ErrGenerationFailed):
		return domain.Quiz{}, apperr.Wrap(ErrGenerationFailed.Kind, ErrGenerationFailed.Message, err)
	default:
		return domain.Quiz{}, fmt.Errorf("generate quiz: %w", err)
	}
}

// SubmitResult scores the answers and appends the result to the user's log.
// The score is recomputed from the submitted questions; no client score is
// accepted.
func (a *App) SubmitResult(ctx context.Context, user domain.Identity, in SubmitInput) (domain.QuizResult, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return domain.QuizResult{}, ErrTopicRequired
	}
	if len(in.Questions) == 0 {
		return domain.QuizResult{}, ErrNoQuestions
	}
	answers := in.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	result := domain.QuizResult{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Topic:          topic,
		Score:          domain.ScoreQuiz(in.Questions, answers),
		TotalQuestions: len(in.Questions),
		Answers:        answers,
		CreatedAt:      a.now(),
	}
	if err := a.store.AppendQuizResult(ctx, result); err != nil {
		return domain.QuizResult{}, fmt.Errorf("save quiz result: %w", err)
	}
	return result, nil
}

// ListResults returns the user's quiz results, newest first.
func (a *App) ListResults(ctx context.Context, user domain.Identity) ([]domain.QuizResult, error) {
	results, err := a.store.ListQuizResults(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	return results, nil
}
