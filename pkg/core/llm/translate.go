package llm

import (
	"context"
	"strings"
)

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// IdentityTranslator returns text unchanged.
type IdentityTranslator struct{}

func (IdentityTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// GeneratorTranslator translates by prompting a Generator.
type GeneratorTranslator struct {
	Generator Generator
}

func (t GeneratorTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" || lang == "" {
		return text, nil
	}
	return t.Generator.Generate(ctx, TranslationPrompt(text, lang))
}

// TranslationPrompt builds the instruction sent to the model.
func TranslationPrompt(text, lang string) string {
	return "Translate the following text to " + lang + " and return only the translation without commentary:\n\n" + text
}
