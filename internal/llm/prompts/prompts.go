// Package prompts builds the instructions sent to the generation model.
package prompts

import (
	"fmt"
	"strings"

	"github.com/quizzy-app/quizzy/internal/model"
)

// SystemPrompt primes the model for question generation.
const SystemPrompt = "You are an AI expert in question generation."

// difficultyGuidance holds per-level phrasing guidance included in the
// generation instruction.
var difficultyGuidance = map[model.Difficulty]string{
	model.DifficultyEasy: "For easy difficulty, generate straightforward and concise questions " +
		"that test basic recall or understanding of key terms or concepts. " +
		"Use clear and distinct options with obviously incorrect distractors.",
	model.DifficultyMedium: "For medium difficulty, generate questions that require some analysis " +
		"or application of concepts. Include plausible distractors that might reflect common mistakes.",
	model.DifficultyHard: "For hard difficulty, generate complex questions that demand deep understanding, " +
		"synthesis of multiple concepts, or complex problem-solving. " +
		"Use very plausible distractors that require careful consideration.",
}

// Guidance returns the phrasing guidance for a difficulty level, or empty
// string for an unknown level.
func Guidance(d model.Difficulty) string {
	return difficultyGuidance[d]
}

// BuildGeneration builds the user prompt requesting n questions from the
// given text segment. The output contract is a bare JSON array of question
// objects; anything else is rejected by the caller.
func BuildGeneration(segment string, n int, difficulty model.Difficulty) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d multiple-choice questions from the text below. ", n)
	if g := Guidance(difficulty); g != "" {
		sb.WriteString(g)
		sb.WriteString(" ")
	}
	sb.WriteString("Questions must be relevant to the subject and usable in an examination. ")
	sb.WriteString("Choose the type ('theory' or 'numerical') based on the content: ")
	sb.WriteString("use 'numerical' for questions involving calculations or mathematical concepts, and 'theory' otherwise. ")
	fmt.Fprintf(&sb, "Set the 'difficulty' field to '%s' for each question. ", difficulty)
	sb.WriteString("Each question should be a JSON object with: question (string), options (array of 4 strings), ")
	sb.WriteString("correct_answer (string, must be one of the options), type (theory/numerical), difficulty (string), ")
	sb.WriteString("relevance_score (float between 0 and 1, where 1 is highly relevant). ")
	sb.WriteString("Return a JSON array only.\n\nText:\n")
	sb.WriteString(segment)
	return sb.String()
}
