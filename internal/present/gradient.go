package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	gradientFrom, _ = colorful.Hex("#F967DC")
	gradientTo, _   = colorful.Hex("#6B50FF")
)

// Gradient renders s one rune at a time, blending from pink to purple.
// Strings shorter than three runes are returned as is.
func Gradient(base lipgloss.Style, s string) string {
	runes := []rune(s)
	if len(runes) < 3 {
		return s
	}
	var b strings.Builder
	for i, r := range runes {
		c := gradientFrom.BlendLuv(gradientTo, float64(i)/float64(len(runes)))
		b.WriteString(base.Foreground(lipgloss.Color(c.Hex())).Render(string(r)))
	}
	return b.String()
}
