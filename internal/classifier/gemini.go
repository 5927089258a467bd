package classifier

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Gemini implements Client against the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed classifier client.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("classifier: gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// generateJSON sends prompt and returns the raw JSON response text.
func (g *Gemini) generateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// ExtractKeywords implements Client.
func (g *Gemini) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(`Extract 3 to 7 keywords that best characterise the following note.
Prefer specific technical terms over generic words. Respond with a JSON array
of strings ordered by importance, for example ["keyword one","keyword two"].

Note:
%s`, text)

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return decodeStringList(raw), nil
}

// FindRelated implements Client. Raw scores are returned; filtering,
// ordering, and truncation are the Gateway's job.
func (g *Gemini) FindRelated(ctx context.Context, title string, keywords []string, candidates []Candidate) ([]Related, error) {
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s (keywords: %s)\n", i, c.Title, strings.Join(c.Keywords, ", "))
	}

	prompt := fmt.Sprintf(`You are scoring how related existing notes are to a query note.

Query note title: %s
Query note keywords: %s

Candidate notes (the number before each title is its index):
%s
For each candidate that is genuinely related, emit an object with:
  "index": the candidate's number,
  "relevance": a score between 0 and 1,
  "reason": one short sentence naming the conceptual connection,
  "type": one of "expansion", "rebuttal", "example", "premise", "application".
Respond with a JSON array of these objects. Omit unrelated candidates.`,
		title, strings.Join(keywords, ", "), list.String())

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return decodeRelated(raw), nil
}

// DetectProject implements Client.
func (g *Gemini) DetectProject(ctx context.Context, title string, keywords []string, projects []string) (ProjectDetection, error) {
	prompt := fmt.Sprintf(`A note with title %q and keywords [%s] needs to be assigned to a project.

Known projects: [%s]

Respond with a JSON object:
  {"project": "<exact id from the known list>"} when one clearly matches,
  {"new_project": "<short name>"} when the note clearly belongs to a project that is not listed,
  {} when the note does not belong to any project.`,
		title, strings.Join(keywords, ", "), strings.Join(projects, ", "))

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return ProjectDetection{}, err
	}
	return decodeProjectDetection(raw), nil
}

// ClassifyDestination implements Client.
func (g *Gemini) ClassifyDestination(ctx context.Context, text string, projects []string) (Destination, error) {
	prompt := fmt.Sprintf(`Classify the following captured text for a personal knowledge base.

Known projects: [%s]

Respond with a JSON object:
  "kind": "zettel-source" when the text contains one or more standalone ideas
          worth extracting into atomic notes, otherwise "note",
  "project": the matching project name or "" when none,
  "title": a concise title for the text,
  "summary": one sentence summarising it.

Text:
%s`, strings.Join(projects, ", "), text)

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return Destination{}, err
	}
	return decodeDestination(raw), nil
}

// ExtractZettels implements Client.
func (g *Gemini) ExtractZettels(ctx context.Context, text string) ([]ZkCandidate, error) {
	prompt := fmt.Sprintf(`Extract the atomic, standalone ideas from the following text in the
Zettelkasten sense: each idea must be understandable on its own.

For each idea emit a JSON object:
  "title": a declarative one-line title,
  "body": the idea restated in 2-5 sentences, self-contained,
  "keywords": 3-5 keywords,
  "importance": "high", "medium", or "low",
  "related_concepts": names of concepts this idea builds on.
Respond with a JSON array. Extract at most 5 ideas; fewer is better than
fragmenting one idea.

Text:
%s`, text)

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return decodeZkCandidates(raw), nil
}

var _ Client = (*Gemini)(nil)
