// Package lang holds the closed set of languages the assistant speaks and the
// script-based detector used to classify user input.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Tag identifies one of the supported languages. The zero value is English,
// which is also the fallback for anything unrecognised.
type Tag uint8

const (
	English Tag = iota
	Hindi
	Telugu

	numTags
)

// Default is returned whenever a code or a text span cannot be classified.
const Default = English

var (
	codes   = [numTags]string{"en", "hi", "te"}
	names   = [numTags]string{"English", "Hindi", "Telugu"}
	locales = [numTags]language.Tag{
		language.MustParse("en-IN"),
		language.MustParse("hi-IN"),
		language.MustParse("te-IN"),
	}
)

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Hindi,
	language.Telugu,
})

// Supported lists every tag in declaration order.
func Supported() []Tag {
	return []Tag{English, Hindi, Telugu}
}

func (t Tag) valid() bool { return t < numTags }

// Code returns the short language code sent over the wire ("en", "hi", "te").
func (t Tag) Code() string {
	if !t.valid() {
		return codes[Default]
	}
	return codes[t]
}

// Name returns the English name of the language, as used in model instructions.
func (t Tag) Name() string {
	if !t.valid() {
		return names[Default]
	}
	return names[t]
}

// Locale returns the regional BCP 47 locale used by speech engines.
func (t Tag) Locale() language.Tag {
	if !t.valid() {
		return locales[Default]
	}
	return locales[t]
}

func (t Tag) String() string { return t.Code() }

// Parse resolves a language code such as "hi", "te-IN" or "en_US" to a Tag.
// Anything whose base language is not supported resolves to Default.
func Parse(code string) Tag {
	code = strings.TrimSpace(code)
	if code == "" {
		return Default
	}
	requested, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return Default
	}
	_, idx, conf := matcher.Match(requested)
	if conf == language.No || idx < 0 || idx >= int(numTags) {
		return Default
	}
	// The matcher maps close neighbours (mr, sa) onto hi; only the same
	// base language counts as a match.
	want, _ := requested.Base()
	if got, _ := locales[idx].Base(); got != want {
		return Default
	}
	return Tag(idx)
}

// MarshalText encodes the tag as its short code.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.Code()), nil
}

// UnmarshalText accepts any code Parse understands.
func (t *Tag) UnmarshalText(text []byte) error {
	if t == nil {
		return fmt.Errorf("lang: unmarshal into nil Tag")
	}
	*t = Parse(string(text))
	return nil
}

// Table is a fixed per-language lookup. Lookups with an unknown tag fall back
// to the Default entry.
type Table[T any] [numTags]T

// Get returns the entry for t, or the Default entry when t is out of range.
func (tb *Table[T]) Get(t Tag) T {
	if !t.valid() {
		return tb[Default]
	}
	return tb[t]
}
