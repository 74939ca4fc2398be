// Package classify maps raw execution failures to a closed error taxonomy.
//
// The taxonomy drives two decisions in the synthesis loop: which repair hint
// is fed back into the next generation, and whether the loop should stop
// because the generator keeps producing the same mistake.
package classify

import "strings"

// Kind is a classified error category. The set is closed so the retry policy
// stays decidable; extend it only together with the marker table below.
type Kind string

const (
	KindSyntaxError       Kind = "SyntaxError"
	KindKeyError          Kind = "KeyError"
	KindTypeError         Kind = "TypeError"
	KindValueError        Kind = "ValueError"
	KindImportError       Kind = "ImportError"
	KindFileNotFoundError Kind = "FileNotFoundError"
	KindTimeout           Kind = "Timeout"
	KindGenerationParse   Kind = "GenerationParseError"
	KindUnknown           Kind = "UnknownError"
)

// Record is one classified failure in a task's error history.
type Record struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Raw    string `json:"raw,omitempty"`
}

// marker associates a taxonomy entry with the substrings that identify it.
// Matching is ordered: the first entry whose marker appears wins, so more
// specific interpreter errors are listed before the generic ones.
type marker struct {
	kind     Kind
	patterns []string
}

var markers = []marker{
	{KindSyntaxError, []string{"SyntaxError", "IndentationError"}},
	{KindKeyError, []string{"KeyError"}},
	{KindFileNotFoundError, []string{"FileNotFoundError", "No such file or directory"}},
	{KindImportError, []string{"ModuleNotFoundError", "ImportError"}},
	{KindTypeError, []string{"TypeError", "AttributeError"}},
	{KindValueError, []string{"ValueError"}},
	{KindTimeout, []string{"TimeoutError", "timed out", "deadline exceeded"}},
}

const maxDetailLen = 200

// Classify maps raw failure text to a Record. Unmatched text becomes
// KindUnknown with a truncated copy of the input as detail.
func Classify(raw string) Record {
	for _, m := range markers {
		for _, p := range m.patterns {
			if strings.Contains(raw, p) {
				return Record{Kind: m.kind, Detail: lastLine(raw), Raw: raw}
			}
		}
	}

	detail := strings.TrimSpace(raw)
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}
	return Record{Kind: KindUnknown, Detail: detail, Raw: raw}
}

// lastLine returns the final non-empty line of a traceback, which for
// interpreter output carries the error type and message.
func lastLine(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return strings.TrimSpace(raw)
}

// DefaultRepeatThreshold is how many identical trailing error kinds stop a
// retry loop.
const DefaultRepeatThreshold = 2

// IsRepeated reports whether the most recent threshold entries of history all
// share the given kind. A threshold below one is treated as one.
func IsRepeated(history []Record, kind Kind, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	if len(history) < threshold {
		return false
	}
	for _, rec := range history[len(history)-threshold:] {
		if rec.Kind != kind {
			return false
		}
	}
	return true
}

// fixHints carries the per-kind repair guidance fed back into the generator.
var fixHints = map[Kind]string{
	KindSyntaxError:       "the code failed to parse; close all brackets and quotes and fix the indentation",
	KindKeyError:          "a referenced column or key does not exist; the available columns are: %s",
	KindTypeError:         "check argument and return types; convert dates to strings and clean mixed-type columns first",
	KindValueError:        "check that input values are legal; prefer simpler estimates when a method rejects the data",
	KindImportError:       "a required library is missing or the import statement is wrong",
	KindFileNotFoundError: "a referenced file does not exist; only read the input paths provided in the bindings",
	KindTimeout:           "execution exceeded the time limit; this is likely an algorithmic cost problem, reduce the working set or choose a cheaper method",
	KindGenerationParse:   "the previous response contained no usable code block; reply with a single fenced code block",
}

// Hint returns repair guidance for a kind. For KeyError the known column
// names are folded into the hint so the generator can correct the reference.
func Hint(kind Kind, columns []string) string {
	hint, ok := fixHints[kind]
	if !ok {
		return "review the code logic and simplify the approach"
	}
	if kind == KindKeyError {
		cols := "(unknown)"
		if len(columns) > 0 {
			cols = strings.Join(columns, ", ")
		}
		return strings.Replace(hint, "%s", cols, 1)
	}
	return hint
}

// strategyAdvice maps kinds to a coarser change of approach, surfaced when
// the repeated-error rule stops a loop.
var strategyAdvice = map[Kind]string{
	KindValueError:  "too many categories: keep the top 10; resampling failed: use point estimates; mediation failed: fall back to correlation",
	KindTypeError:   "inspect dtypes, convert dates to strings, clean mixed-type columns before analysis",
	KindKeyError:    "print the actual column names and check for whitespace or special characters",
	KindImportError: "restrict the code to the preinstalled libraries",
	KindTimeout:     "sample the data or switch to a linear-time method",
}

// StrategyAdvice returns a change-of-approach suggestion for a kind.
func StrategyAdvice(kind Kind) string {
	if advice, ok := strategyAdvice[kind]; ok {
		return advice
	}
	return "simplify the code and use basic methods"
}
