package summary

import (
	"fmt"
	"strings"

	"github.com/kastrel/nest/internal/relay"
)

// defaultPrompt is sent when the caller does not supply one.
const defaultPrompt = `Take all the subject data below and summarize it.
Provide a comprehensive analysis including key risk factors, relationship health,
and actionable recommendations.`

// Bundle is the caller-supplied material for one summarize request.
type Bundle struct {
	Prompt      string                   `json:"prompt"`
	SubjectData map[string]interface{}   `json:"subject_data"`
	Documents   []map[string]interface{} `json:"documents"`
	Messages    []map[string]interface{} `json:"messages"`
}

// BuildRequest assembles the relay request for one subject. The subject
// id is stamped into the subject data so the summary service can key its
// prompt template.
func BuildRequest(subjectID string, b Bundle) relay.Request {
	prompt := b.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	data := make(map[string]interface{}, len(b.SubjectData)+1)
	for k, v := range b.SubjectData {
		data[k] = v
	}
	data["subject_id"] = subjectID

	docs := b.Documents
	if docs == nil {
		docs = []map[string]interface{}{}
	}
	msgs := b.Messages
	if msgs == nil {
		msgs = []map[string]interface{}{}
	}

	return relay.Request{
		Prompt:      prompt,
		SubjectData: data,
		Documents:   docs,
		Messages:    msgs,
	}
}

// FormatDocuments renders a document list human-readably, for callers
// that want a pre-formatted prompt instead of structured data.
func FormatDocuments(documents []map[string]interface{}) string {
	if len(documents) == 0 {
		return "No documents on file."
	}

	lines := []string{fmt.Sprintf("Documents (%d total):", len(documents))}
	for _, doc := range documents {
		lines = append(lines, fmt.Sprintf("- %v (%v) - %v",
			doc["title"], doc["doc_type"], doc["created_at"]))
	}
	return strings.Join(lines, "\n")
}

// FormatMessages renders the most recent messages human-readably,
// truncating long bodies and capping at ten entries.
func FormatMessages(messages []map[string]interface{}) string {
	if len(messages) == 0 {
		return "No messages on record."
	}

	lines := []string{fmt.Sprintf("Messages (%d total):", len(messages))}

	recent := messages
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for _, msg := range recent {
		role, _ := msg["message_role"].(string)
		if role == "" {
			role = "unknown"
		}
		sentiment, _ := msg["sentiment"].(string)
		if sentiment == "" {
			sentiment = "neutral"
		}
		text, _ := msg["text"].(string)
		if len(text) > 100 {
			text = text[:100] + "..."
		}
		lines = append(lines, fmt.Sprintf("- [%v] %s (%s): %s", msg["message_time"], role, sentiment, text))
	}
	if len(messages) > 10 {
		lines = append(lines, fmt.Sprintf("  ... and %d more messages", len(messages)-10))
	}
	return strings.Join(lines, "\n")
}
