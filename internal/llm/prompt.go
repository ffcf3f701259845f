package llm

import (
	"fmt"
	"strings"

	"github.com/corpusqa/corpusqa/internal/store"
)

// SystemPrompt instructs the model to answer strictly from the provided
// context.
const SystemPrompt = `You are an assistant answering questions about a document corpus.
Answer using ONLY the provided context fragments. If the context does not
contain the answer, say so plainly. Cite fragment numbers like [1] when
a statement comes from a specific fragment. Be concise and factual.`

// NotFoundAnswer is returned when retrieval produced nothing usable.
const NotFoundAnswer = "The requested information was not found in the document corpus."

// BuildPrompt renders the question and its supporting chunks into the
// user prompt. Fragments are numbered in the order given, which callers
// keep as relevance order.
func BuildPrompt(question string, chunks []*store.Chunk) string {
	var sb strings.Builder

	sb.WriteString("Context fragments:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d]", i+1)
		if c.Heading != "" {
			fmt.Fprintf(&sb, " %s", c.Heading)
		}
		if c.ChunkType != "" && c.ChunkType != store.ChunkTypeGeneral {
			fmt.Fprintf(&sb, " (%s)", c.ChunkType)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(c.Text))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n")

	return sb.String()
}
