package domain

import "strings"

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a multiple-choice question. More than one option may be
// marked correct; any of them is accepted.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionAt returns the question with the given 1-based number.
func (q Quiz) QuestionAt(number int) (Question, bool) {
	if number < 1 || number > len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[number-1], true
}

// IsCorrect checks a raw answer (the selected option id) against the
// question's correct options.
func (q Question) IsCorrect(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	for _, opt := range q.Options {
		if opt.ID == raw {
			return opt.Correct, nil
		}
	}
	return false, ErrOptionNotFound
}
