package imagegen

import (
	"fmt"
	"strings"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// PromptAbstractLimit is the maximum abstract length, in runes, included in a
// generation prompt. Longer abstracts are cut and marked with an ellipsis.
const PromptAbstractLimit = 500

// BuildPrompt composes the image generation prompt for one enriched paper.
// Only the title, year, and truncated abstract are included. The search
// snippet and source URL are deliberately left out: the snippet carries
// search-highlighted query terms that contaminate the generation.
func BuildPrompt(paper domain.EnrichedPaper) string {
	var sb strings.Builder

	sb.WriteString("Create an engaging, informative scientific visualization that captures ")
	sb.WriteString("the essence of this research paper.\n\n")

	sb.WriteString(fmt.Sprintf("Title: %s\n", paper.Title))
	if paper.Year > 0 {
		sb.WriteString(fmt.Sprintf("Year: %d\n", paper.Year))
	}
	if abstract := truncateRunes(paper.Abstract, PromptAbstractLimit); abstract != "" {
		sb.WriteString(fmt.Sprintf("Abstract: %s\n", abstract))
	}

	sb.WriteString("\nStyle: Modern, professional scientific illustration with clean design.\n")
	sb.WriteString("Goal: Grab reader attention and convey the research's key concepts visually.\n")
	sb.WriteString("Make it informative, insightful, and visually compelling for academic audiences.")

	return sb.String()
}

// truncateRunes shortens s to at most limit runes, appending an ellipsis
// when anything was cut.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
