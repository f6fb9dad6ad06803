package llm

import (
	"fmt"
	"strings"

	"github.com/linconhq/lincon/internal/record"
)

// buildClassifyPrompt asks for a category and context flag for one memory.
func buildClassifyPrompt(text string) string {
	var sb strings.Builder

	sb.WriteString("You are classifying a raw personal work note for a LinkedIn content pipeline.\n\n")
	sb.WriteString("## Note\n")
	sb.WriteString(text)
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString("Classify the note into exactly one category:\n")
	sb.WriteString("- work_log: something the author did or shipped\n")
	sb.WriteString("- insight: a lesson, realization or opinion\n")
	sb.WriteString("- failure: something that went wrong and what it cost\n")
	sb.WriteString("- idea: a plan or concept not yet executed\n")
	sb.WriteString("- misc: anything else\n\n")
	sb.WriteString("Also decide has_context: does the note carry enough surrounding detail to draft a post from directly?\n\n")
	sb.WriteString("IMPORTANT: Respond with ONLY a valid JSON object. No markdown, no code blocks, no explanation.\n\n")
	sb.WriteString("Example structure:\n")
	sb.WriteString(`{"category": "insight", "has_context": "yes"}`)
	sb.WriteString("\n")

	return sb.String()
}

func writeMemories(sb *strings.Builder, memories []record.Memory) {
	for i, m := range memories {
		sb.WriteString(fmt.Sprintf("### Note %d (category: %s)\n", i+1, m.Category))
		sb.WriteString(m.Text)
		sb.WriteString("\n\n")
	}
}

// buildTextPostPrompt drafts a plain text post from source memories.
func buildTextPostPrompt(memories []record.Memory) string {
	var sb strings.Builder

	sb.WriteString("You are drafting a LinkedIn post from the author's raw notes below.\n\n")
	sb.WriteString("## Notes\n\n")
	writeMemories(&sb, memories)
	sb.WriteString("## Task\n\n")
	sb.WriteString("Write one LinkedIn post in the author's voice: specific, first-person, no hashtag spam, under 1300 characters.\n")
	sb.WriteString("Respond with ONLY the post text. No preamble, no quotes.\n")

	return sb.String()
}

// buildCarouselPrompt drafts ordered slide texts. Slide 1 is the hook.
func buildCarouselPrompt(memories []record.Memory) string {
	var sb strings.Builder

	sb.WriteString("You are drafting a LinkedIn carousel from the author's raw notes below.\n\n")
	sb.WriteString("## Notes\n\n")
	writeMemories(&sb, memories)
	sb.WriteString("## Task\n\n")
	sb.WriteString(fmt.Sprintf("Write between 1 and %d slides. Slide 1 is the hook and doubles as the caption.\n", record.MaxSlides))
	sb.WriteString("Keep each slide under 200 characters. Short hooks land harder.\n\n")
	sb.WriteString("IMPORTANT: Respond with ONLY a valid JSON array of slide strings. No markdown, no code blocks, no explanation - just the raw JSON starting with [ and ending with ].\n\n")
	sb.WriteString("Example structure:\n")
	sb.WriteString(`["I broke prod on a Friday.", "Here is what it taught me about deploys.", "Ship boring."]`)
	sb.WriteString("\n")

	return sb.String()
}

// buildNeedsPhotoPrompt decides whether the draft calls for a real photo.
func buildNeedsPhotoPrompt(slides []string, sourceText string) string {
	var sb strings.Builder

	sb.WriteString("You are deciding whether a LinkedIn carousel draft needs a real photograph from the author, as opposed to generated text slides alone.\n\n")
	sb.WriteString("## Slides\n\n")
	for i, s := range slides {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
	}
	sb.WriteString("\n## Source note\n\n")
	sb.WriteString(sourceText)
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString("Only say yes when a real photo would materially strengthen the post (a physical artifact, an event, a whiteboard, a team moment). When in doubt, say no.\n\n")
	sb.WriteString("IMPORTANT: Respond with ONLY a valid JSON object. No markdown, no code blocks, no explanation.\n\n")
	sb.WriteString("Example structure:\n")
	sb.WriteString(`{"needs_photo": false, "reason": "", "photo_description": ""}`)
	sb.WriteString("\n")

	return sb.String()
}
