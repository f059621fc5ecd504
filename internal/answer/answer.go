// Package answer produces an answer to a question from retrieved context.
package answer

import (
	"context"
	"strings"

	"github.com/hyperjump/docchat/pkg/utils"
)

// NoAnswer is returned when the context does not support an answer.
const NoAnswer = "I couldn't find that in the document."

// DefaultMinConfidence is used when a non-positive threshold is given.
const DefaultMinConfidence = 0.2

// Generator answers a question using only the given context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Extractive answers with the context sentence that shares the largest fraction
// of the question's content words. Below MinConfidence it returns NoAnswer.
type Extractive struct {
	MinConfidence float64
}

// NewExtractive returns an extractive generator with the given threshold.
func NewExtractive(minConfidence float64) *Extractive {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Extractive{MinConfidence: minConfidence}
}

// Generate implements Generator.
func (e *Extractive) Generate(ctx context.Context, question, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return NoAnswer, nil
	}
	best, score := bestSentence(question, text)
	if best == "" || score < e.MinConfidence {
		return NoAnswer, nil
	}
	return best, nil
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"do": {}, "does": {}, "did": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"and": {}, "or": {}, "it": {}, "this": {}, "that": {}, "there": {}, "can": {}, "you": {},
	"i": {}, "me": {}, "my": {}, "tell": {}, "about": {}, "please": {}, "with": {}, "by": {},
}

// contentWords returns the distinct non-stopword words of s, or all distinct
// words when every word is a stopword.
func contentWords(s string) map[string]struct{} {
	words := utils.Words(s)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	if len(out) == 0 {
		for _, w := range words {
			out[w] = struct{}{}
		}
	}
	return out
}

// bestSentence returns the first highest-scoring sentence and its score in [0, 1].
func bestSentence(question, text string) (string, float64) {
	q := contentWords(question)
	if len(q) == 0 {
		return "", 0
	}
	var best string
	var bestScore float64
	for _, sentence := range Sentences(text) {
		seen := make(map[string]struct{})
		hits := 0
		for _, w := range utils.Words(sentence) {
			if _, ok := q[w]; !ok {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			hits++
		}
		if score := float64(hits) / float64(len(q)); score > bestScore {
			best, bestScore = sentence, score
		}
	}
	return best, bestScore
}

// Sentences splits text on line breaks and on '.', '!' or '?' followed by
// whitespace. Sentences are trimmed and blanks dropped.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '.', '!', '?':
				if i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t' {
					out = append(out, line[start:i+1])
					start = i + 1
				}
			}
		}
		out = append(out, line[start:])
	}
	return utils.CleanTexts(out)
}
