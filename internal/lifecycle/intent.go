package lifecycle

import (
	"fmt"
	"strings"
)

// Font tiers for carousel slides, chosen by text length. Short hooks get
// the biggest type.
const (
	fontTierXL = "xl"
	fontTierLG = "lg"
	fontTierMD = "md"
)

func fontTier(text string) string {
	switch n := len(text); {
	case n < 30:
		return fontTierXL
	case n < 60:
		return fontTierLG
	default:
		return fontTierMD
	}
}

// BuildDesignIntent derives per-slide layout instructions for a carousel
// draft: one block per slide with a font tier, alignment and background.
func BuildDesignIntent(slides []string) string {
	var sb strings.Builder
	for i, slide := range slides {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("slide %d: font=%s align=center bg=brand\n", i+1, fontTier(slide)))
		sb.WriteString(fmt.Sprintf("  text: %s\n", slide))
	}
	return sb.String()
}
