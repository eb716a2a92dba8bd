// Package suggest supplies the follow-up prompts shown under assistant turns.
package suggest

import (
	"strings"

	"kisanmitra/internal/lang"
	"kisanmitra/internal/models"
)

var defaults = lang.Table[[]string]{
	lang.English: {
		"🌾 How to prepare soil?",
		"🌱 Best seeds for beginners",
		"🛡️ Pest control tips",
		"☁️ Weather update",
	},
	lang.Hindi: {
		"🌾 मिट्टी कैसे तैयार करें?",
		"🌱 शुरुआती लोगों के लिए बेहतर बीज",
		"🛡️ कीट नियंत्रण के सुझाव",
		"☁️ मौसम की जानकारी",
	},
	lang.Telugu: {
		"🌾 మట్టిని ఎలా సిద్ధం చేయాలి?",
		"🌱 ప్రారంభకులకు ఉత్తమ విత్తనాలు",
		"🛡️ తెగులు నివారణ చిట్కాలు",
		"☁️ వాతావరణ సమాచారం",
	},
}

// DefaultsFor returns a fresh copy of the fallback prompts for tag.
func DefaultsFor(tag lang.Tag) []string {
	return append([]string(nil), defaults.Get(tag)...)
}

// FromResponse passes through the service-provided suggestions, dropping
// blank entries. It returns nil when nothing usable is present.
func FromResponse(resp *models.ChatResponse) []string {
	if resp == nil || len(resp.Suggestions) == 0 {
		return nil
	}
	out := make([]string, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Resolve returns the response suggestions, or the defaults for tag when the
// response carries none.
func Resolve(resp *models.ChatResponse, tag lang.Tag) []string {
	if s := FromResponse(resp); s != nil {
		return s
	}
	return DefaultsFor(tag)
}
