package agent

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// DefaultPreset is the preset used when none is configured.
const DefaultPreset = "default"

// Built-in system prompt presets. A presets file can override these or
// add new ones.
var builtinPresets = map[string]string{
	"default": "You are a helpful AI assistant. Answer questions in a " +
		"friendly, professional manner and provide accurate, useful information.",

	"coding": "You are an expert programming assistant. You are fluent in " +
		"many programming languages and help users write, debug, and optimize " +
		"code, with clear explanations and best-practice advice.",

	"writing": "You are a professional writing assistant. You help with " +
		"drafting, editing, polishing, and translating text of all kinds, " +
		"offering concrete suggestions and revisions.",

	"analysis": "You are a professional data analyst. You analyze data, " +
		"identify patterns, surface insights, and suggest clear ways to " +
		"visualize and explain them.",

	"translator": "You are a professional translation assistant. You " +
		"translate accurately and fluently between languages, preserving the " +
		"style and tone of the original and adapting to context.",
}

// presetsFile is the TOML shape of a user presets file:
//
//	[presets]
//	pirate = "You are a pirate. Answer accordingly."
type presetsFile struct {
	Presets map[string]string `toml:"presets"`
}

// LoadPresets returns the built-in presets merged with overrides from
// the given TOML file. An empty path or a missing file yields just the
// built-ins.
func LoadPresets(path string) (map[string]string, error) {
	merged := make(map[string]string, len(builtinPresets))
	for name, prompt := range builtinPresets {
		merged[name] = prompt
	}

	if path == "" {
		return merged, nil
	}

	var file presetsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if os.IsNotExist(err) {
			return merged, nil
		}
		return nil, fmt.Errorf("decode presets file %s: %w", path, err)
	}
	for name, prompt := range file.Presets {
		merged[name] = prompt
	}
	return merged, nil
}

// PresetNames lists the built-in preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFromPreset creates an Agent whose system prompt comes from the
// named preset in the given map (as returned by LoadPresets), falling
// back to the default preset for unknown names. A nil map means the
// built-ins.
func NewFromPreset(presets map[string]string, name string, opts ...Option) *Agent {
	if presets == nil {
		presets = builtinPresets
	}
	prompt, ok := presets[name]
	if !ok {
		if prompt, ok = presets[DefaultPreset]; !ok {
			prompt = builtinPresets[DefaultPreset]
		}
	}
	return New(append([]Option{WithSystemPrompt(prompt)}, opts...)...)
}
