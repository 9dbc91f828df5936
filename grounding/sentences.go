package grounding

import (
	"embed"
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/data"
)

// DefaultLanguage is the Punkt model used for memo segmentation
const DefaultLanguage = "dutch"

// punktModels holds Punkt training sets that the sentences module does not
// compile in; its data package only bundles English.
//
//go:embed punkt/*.json
var punktModels embed.FS

// SentenceSplitter segments text into sentences
type SentenceSplitter interface {
	Split(text string) ([]string, error)
}

// PunktSplitter splits text with a pre-trained Punkt model. Abbreviations and
// the periods inside legal citations follow whatever the model learned, so
// boundaries around citations are not guaranteed to match a human reading.
type PunktSplitter struct {
	language  string
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSplitter loads the bundled Punkt training data for language
func NewPunktSplitter(language string) (*PunktSplitter, error) {
	if language == "" {
		language = DefaultLanguage
	}

	b, err := punktTraining(language)
	if err != nil {
		return nil, err
	}

	training, err := sentences.LoadTraining(b)
	if err != nil {
		return nil, fmt.Errorf("failed to load punkt model for %q: %w", language, err)
	}

	return &PunktSplitter{
		language:  language,
		tokenizer: sentences.NewSentenceTokenizer(training),
	}, nil
}

func punktTraining(language string) ([]byte, error) {
	if language == "english" {
		return data.Asset("data/english.json")
	}
	b, err := punktModels.ReadFile(fmt.Sprintf("punkt/%s.json", language))
	if err != nil {
		return nil, fmt.Errorf("no punkt model for language %q: %w", language, err)
	}
	return b, nil
}

// Language returns the Punkt model name
func (s *PunktSplitter) Language() string {
	return s.language
}

// Split returns the non-blank sentences of text
func (s *PunktSplitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	tokens := s.tokenizer.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		sentence := strings.TrimSpace(tok.Text)
		if sentence != "" {
			out = append(out, sentence)
		}
	}
	return out, nil
}
