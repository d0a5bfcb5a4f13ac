package interviewer

import (
	"fmt"
	"strings"
)

// FinishTag marks the interviewer's concluding message
const FinishTag = "[FINISH]"

const basePrompt = "You are a professional interviewer. Use plain text only, with no bold text and no emojis. " +
	"Sound natural: acknowledge answers briefly (for example 'Got it', 'Thanks for sharing', 'I see'), vary your phrasing, " +
	"stay polite and encouraging, and keep responses concise. " +
	"Ask exactly one question at a time and wait for the candidate's answer. " +
	"Judge whether each answer addresses the question. If it is unclear, irrelevant or looks like random characters, " +
	"politely ask the candidate to answer properly and repeat or rephrase the same question. " +
	"Move on only once the current question has been answered sufficiently. " +
	"About 80% of the questions should be technical and tailored to the candidate's target job title. " +
	"Use the first one or two questions for a short introduction and to confirm interest in the role. " +
	"Then cover the methodology of a professional interview: algorithms and data structures, system design, " +
	"language and framework expertise, databases, testing, performance, security and best practices relevant to the role. " +
	"Ask exactly the number of questions given under Interview Length. " +
	"After the candidate answers the final question, do not ask another one. " +
	"Close politely instead, for example 'That is all from the interview today. Thank you for your time.', " +
	"and give a brief explanation of how the candidate performed. " +
	"Do not mention the numerical score in the explanation. " +
	"After the explanation, on a new line, write the score in exactly this format: 'Interview Readiness Score: XX/100'. " +
	"If the interview ends early at the candidate's request, say that a score cannot be accurately determined without completing the session. " +
	"End your final concluding message with the exact tag " + FinishTag + "."

// Level maps a difficulty to the label the interviewer is briefed with
func Level(difficulty string) string {
	switch difficulty {
	case "easy":
		return "Beginner"
	case "hard":
		return "Advanced"
	default:
		return "Intermediate"
	}
}

var levelFocus = map[string]string{
	"Beginner":     "Focus on HR and behavioral questions plus the basic technical fundamentals of the role.",
	"Intermediate": "Focus on role-specific technical skills, real-world scenarios and practical applications.",
	"Advanced":     "Focus on system design, complex problem solving, architecture and deep technical expertise.",
}

// SystemPrompt builds the interviewer briefing for one candidate
func SystemPrompt(c Context) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nCANDIDATE CONTEXT:\n")
	if c.JobTitle != "" {
		fmt.Fprintf(&b, "- Target Job Title: %s\n", c.JobTitle)
	}
	if len(c.ResumeFeedback) > 0 {
		fmt.Fprintf(&b, "- Resume Analysis: %s\n", strings.TrimSpace(string(c.ResumeFeedback)))
	}
	if c.QuestionLimit > 0 {
		fmt.Fprintf(&b, "- Interview Length: Exactly %d questions.\n", c.QuestionLimit)
	}
	level := Level(c.Difficulty)
	fmt.Fprintf(&b, "- Difficulty Level: %s\n  (%s)\n", level, levelFocus[level])
	b.WriteString("\nTailor the technical and behavioral questions to this context and the difficulty level, and finish exactly at the limit.")
	return b.String()
}

// splitFinish removes the finish tag and reports whether it was present
func splitFinish(text string) (string, bool) {
	if !strings.Contains(text, FinishTag) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, FinishTag, "")), true
}
