package lang

// Unicode blocks that identify the input script.
const (
	devanagariFirst = '\u0900'
	devanagariLast  = '\u097F'
	teluguFirst     = '\u0C00'
	teluguLast      = '\u0C7F'
)

// Detect classifies text by script. Devanagari wins over Telugu when both are
// present; text with neither resolves to Default.
func Detect(text string) Tag {
	sawTelugu := false
	for _, r := range text {
		switch {
		case r >= devanagariFirst && r <= devanagariLast:
			return Hindi
		case r >= teluguFirst && r <= teluguLast:
			sawTelugu = true
		}
	}
	if sawTelugu {
		return Telugu
	}
	return Default
}
