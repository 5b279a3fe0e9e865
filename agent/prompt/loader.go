package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/writer.txt
	writerRaw string

	//go:embed template/composer.txt
	composerRaw string

	//go:embed template/assistant.txt
	assistantRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Extractor string
	Writer    string
	Composer  string
	Assistant string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings. Safe to
// call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Extractor: strings.TrimSpace(extractorRaw),
		Writer:    strings.TrimSpace(writerRaw),
		Composer:  strings.TrimSpace(composerRaw),
		Assistant: strings.TrimSpace(assistantRaw),
	}
}
