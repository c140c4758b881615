package rag

import (
	"fmt"
	"strings"

	"github.com/soyeahso/docent/internal/domain"
)

// Category buckets a question for prompt selection.
type Category string

const (
	CategoryTechnical Category = "technical"
	CategoryProject   Category = "project"
	CategoryGeneral   Category = "general"
)

var (
	technicalKeywords = []string{"technology", "tech", "programming", "code", "framework", "language", "stack"}
	projectKeywords   = []string{"project", "work", "experience", "built", "developed", "created"}
)

// Classify buckets a question by keyword heuristics. Priority is fixed:
// technical beats project; general is the fallback and always available.
func Classify(question string) Category {
	q := strings.ToLower(question)
	for _, w := range technicalKeywords {
		if strings.Contains(q, w) {
			return CategoryTechnical
		}
	}
	for _, w := range projectKeywords {
		if strings.Contains(q, w) {
			return CategoryProject
		}
	}
	return CategoryGeneral
}

// systemPrompt presents the assistant as the portfolio's owner speaking in
// first person. Sent as the system turn on every generation call.
const systemPrompt = `You are the engineer this assistant represents, answering questions about your own background, experience, and projects.

Rules:
- Always respond in first person, as yourself
- Never refer to yourself in third person or as an AI assistant
- Draw on the documented experience and projects provided as context
- Reference specific technologies and projects when relevant
- If the context does not cover something, say so naturally instead of guessing
- Keep responses conversational and engaging`

const generalTemplate = `Based on the following context about your background, answer the question in first person.

Context from your documents and profiles:
%s

Question: %s

Answer:`

const followUpTemplate = `You are continuing a conversation about your background and experience.

Context from your documents:
%s

Previous conversation:
%s

Current question: %s

Continue the conversation, building on the previous context:`

const technicalTemplate = `Answer this technical question based on your experience and the provided context.

Context from your documents:
%s

Technical question: %s

Provide a detailed technical answer, including:
- Your experience with the technology
- Specific projects or examples
- Best practices you've learned

Answer:`

const projectTemplate = `You are discussing your projects and work experience.

Context about your projects and experience:
%s

Question about your projects: %s

Answer with:
- Specific details about the project
- Technologies used
- Challenges faced and solutions
- Outcomes and learnings
- Your role and contributions

Answer:`

// PromptFor selects the generation prompt for a classified question.
// Technical and project strategies ignore history; the follow-up strategy
// applies only to general questions with prior turns.
func PromptFor(cat Category, context string, history []domain.Message, question string) string {
	switch {
	case cat == CategoryTechnical:
		return fmt.Sprintf(technicalTemplate, context, question)
	case cat == CategoryProject:
		return fmt.Sprintf(projectTemplate, context, question)
	case len(history) > 0:
		return fmt.Sprintf(followUpTemplate, context, renderHistory(history), question)
	default:
		return fmt.Sprintf(generalTemplate, context, question)
	}
}

// renderHistory flattens prior turns into the transcript block embedded by
// the follow-up strategy.
func renderHistory(history []domain.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case domain.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		}
	}
	return strings.TrimSpace(b.String())
}
