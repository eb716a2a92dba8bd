// Package normalize decides whether user input is sent as typed, converted to
// the UI language's script, or passed through a translator.
package normalize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
)

// Transliterator converts phonetic Latin text into the script of target.
type Transliterator interface {
	Transliterate(ctx context.Context, text string, target lang.Tag) (string, error)
}

// Translator renders text in target.
type Translator interface {
	Translate(ctx context.Context, text string, target lang.Tag) (string, error)
}

// TagTranslator is the placeholder translator: it appends the target code
// instead of translating.
type TagTranslator struct{}

// Translate returns "text (code)".
func (TagTranslator) Translate(_ context.Context, text string, target lang.Tag) (string, error) {
	return fmt.Sprintf("%s (%s)", text, target.Code()), nil
}

// Result is the outcome of normalising one message.
type Result struct {
	Text        string
	Detected    lang.Tag
	Transformed bool
}

// Normalizer applies the transliterate/translate/pass-through decision.
type Normalizer struct {
	transliterator Transliterator
	translator     Translator
	log            *logger.Logger
}

// New builds a Normalizer. A nil translator falls back to TagTranslator; a nil
// transliterator makes every transliteration attempt degrade to pass-through.
func New(tr Transliterator, tl Translator, log *logger.Logger) *Normalizer {
	if tl == nil {
		tl = TagTranslator{}
	}
	return &Normalizer{
		transliterator: tr,
		translator:     tl,
		log:            logger.OrNop(log).Named("normalize"),
	}
}

// Normalize prepares raw (already checked to be non-blank) for sending in ui.
// It never fails: a failed conversion keeps raw but still reports Transformed.
func (n *Normalizer) Normalize(ctx context.Context, raw string, ui lang.Tag) Result {
	detected := lang.Detect(raw)
	res := Result{Text: raw, Detected: detected}

	switch {
	case ui == lang.Hindi && detected == lang.Default:
		res.Transformed = true
		if n.transliterator == nil {
			return res
		}
		converted, err := n.transliterator.Transliterate(ctx, raw, ui)
		if err != nil {
			n.log.Debug("transliteration failed, sending as typed",
				zap.String("ui_language", ui.Code()),
				zap.String("text", logger.Preview(raw)),
				zap.Error(err))
			return res
		}
		res.Text = converted
	case detected != ui:
		res.Transformed = true
		translated, err := n.translator.Translate(ctx, raw, ui)
		if err != nil {
			n.log.Debug("translation failed, sending as typed",
				zap.String("ui_language", ui.Code()),
				zap.String("user_language", detected.Code()),
				zap.Error(err))
			return res
		}
		res.Text = translated
	}
	return res
}
