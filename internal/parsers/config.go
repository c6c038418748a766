package parsers

import (
	"strconv"

	"github.com/google/uuid"
)

// IDGenerator produces bank movement ids. Ids only need to be unique within
// one import.
type IDGenerator func() string

// NormalizerOptions configures bank statement parsing.
type NormalizerOptions struct {
	Parse       *ParseConfig
	IDGenerator IDGenerator
	// Source names the input in logs and errors, e.g. the file name.
	Source string
}

// DefaultNormalizerOptions returns options generating uuid movement ids.
func DefaultNormalizerOptions() *NormalizerOptions {
	return &NormalizerOptions{
		Parse:       DefaultParseConfig(),
		IDGenerator: uuid.NewString,
		Source:      "bank statement",
	}
}

func (o *NormalizerOptions) withDefaults() *NormalizerOptions {
	defaults := DefaultNormalizerOptions()
	if o == nil {
		return defaults
	}
	merged := *o
	if merged.Parse == nil {
		merged.Parse = defaults.Parse
	}
	if merged.IDGenerator == nil {
		merged.IDGenerator = defaults.IDGenerator
	}
	if merged.Source == "" {
		merged.Source = defaults.Source
	}
	return &merged
}

// SequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
