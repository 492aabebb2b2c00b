package presentation

import (
	"encoding/json"
	"io"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatRegistry writes the registry view as indented JSON.
func (f *Formatter) FormatRegistry(dto RegistryDTO) error {
	return f.encode(dto)
}

// FormatTiers writes a filtered list of tiers as indented JSON.
func (f *Formatter) FormatTiers(tiers []TierDTO) error {
	return f.encode(tiers)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
