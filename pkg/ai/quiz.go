package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

// QuizQuestionCount is how many questions a generated quiz asks for.
const QuizQuestionCount = 30

var (
	// ErrGenerationFailed means the model answered but no usable quiz could be read.
	ErrGenerationFailed = errors.New("quiz generation failed")
	// ErrGeneratorUnavailable wraps transport and provider failures.
	ErrGeneratorUnavailable = errors.New("text generator unavailable")
)

const quizSystemPrompt = `You write multiple-choice quizzes. Reply with JSON only, no prose.`

// QuizPrompt renders the instruction sent to the generator for topic.
func QuizPrompt(topic string) string {
	return fmt.Sprintf(`Generate exactly %d multiple-choice questions on the topic: %q.
Return ONLY a JSON object in this format:
{
  "questions": [
    {
      "question": "Question text?",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correctAnswer": "Option A"
    }
  ]
}
Each question must have exactly 4 options. The correctAnswer must match one of the options exactly.`, QuizQuestionCount, topic)
}

// GenerateQuiz issues a single generation call for topic and parses the reply.
func GenerateQuiz(ctx context.Context, gen TextGenerator, topic string) (domain.Quiz, error) {
	text, err := gen.GenerateText(ctx, quizSystemPrompt, QuizPrompt(topic))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}
	quiz, err := ParseQuiz(text)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Topic = topic
	return quiz, nil
}

// ParseQuiz strips code fences, takes the first top-level JSON object and
// decodes it. A quiz without questions is a failure.
func ParseQuiz(text string) (domain.Quiz, error) {
	obj, ok := ExtractJSONObject(StripCodeFences(text))
	if !ok {
		return domain.Quiz{}, fmt.Errorf("%w: no json object in response", ErrGenerationFailed)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(obj), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(quiz.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: no questions", ErrGenerationFailed)
	}
	return quiz, nil
}

// StripCodeFences removes markdown fence markers such as ```json and ```.
func StripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// ExtractJSONObject returns the first balanced {...} in text. Braces inside
// JSON strings, including escaped quotes, do not count.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
