package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

// NoResultsAnswer is returned without calling the model when retrieval
// finds nothing.
const NoResultsAnswer = "No relevant information found."

const systemPrompt = `You are a precise assistant that answers questions using only the provided context.
Rules:
- Use only facts stated in the context. Do not use outside knowledge.
- If the context does not contain the answer, reply exactly: "The information is not available in the provided document."
- Keep the answer concise and factual.`

// Synthesizer turns ranked chunks into a grounded answer with its sources.
type Synthesizer struct {
	llm    core.LLMProvider
	logger *slog.Logger
}

func NewSynthesizer(llm core.LLMProvider, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, logger: logger}
}

// Answer builds the grounding prompt from the candidates and queries the
// model. Empty candidates short-circuit to NoResultsAnswer.
func (s *Synthesizer) Answer(ctx context.Context, query string, candidates []models.RankedCandidate) (models.Answer, error) {
	if len(candidates) == 0 {
		return models.Answer{Answer: NoResultsAnswer, Sources: []string{}}, nil
	}

	contextText := mergeContext(candidates)
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)

	answer, err := s.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	sources := collectSources(candidates)
	s.logger.Debug("answer synthesized", "candidates", len(candidates), "sources", len(sources))
	return models.Answer{Answer: strings.TrimSpace(answer), Sources: sources}, nil
}

// mergeContext joins candidate texts into one context block. Bullet glyphs
// become dashes and doubled blank lines collapse so the prompt stays tight.
func mergeContext(candidates []models.RankedCandidate) string {
	blocks := make([]string, 0, len(candidates))
	for _, c := range candidates {
		text := strings.ReplaceAll(c.Content, "•", "-")
		text = strings.ReplaceAll(text, "\n\n", "\n")
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// collectSources dedupes "{source} - Page {page}" labels, keeping first
// occurrence order so the top-ranked chunk's source is listed first.
func collectSources(candidates []models.RankedCandidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	sources := make([]string, 0, len(candidates))
	for _, c := range candidates {
		src := c.Metadata["source"]
		page := c.Metadata["page"]
		if src == "" {
			continue
		}
		label := src
		if page != "" {
			label = fmt.Sprintf("%s - Page %s", src, page)
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		sources = append(sources, label)
	}
	return sources
}
