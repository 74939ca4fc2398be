// Package extract pulls structured payloads out of free-form generator text.
//
// Generator output is never trusted to be well formed. Each extractor runs an
// explicit, ordered list of strategies and reports which one matched, so the
// boundary parsing stays out of the callers' control flow entirely.
package extract

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoMatch is returned when no strategy recognizes the input.
var ErrNoMatch = errors.New("no extraction strategy matched")

// Result is a successful extraction, tagged with the strategy that produced it.
type Result struct {
	Value    string
	Strategy string
}

var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?```")
	bareBlockRe = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")
)

// JSON extracts a JSON object from content. Strategies, in order: a ```json
// fenced block, a bare fenced block that starts with "{", then brace matching
// over the raw text.
func JSON(content string) (Result, error) {
	if matches := jsonBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		return Result{Value: strings.TrimSpace(matches[1]), Strategy: "json-fence"}, nil
	}

	if matches := bareBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if strings.HasPrefix(candidate, "{") {
			return Result{Value: candidate, Strategy: "bare-fence"}, nil
		}
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return Result{}, ErrNoMatch
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return Result{Value: content[start : i+1], Strategy: "brace-match"}, nil
			}
		}
	}

	return Result{}, ErrNoMatch
}

// Code extracts source code from content. Strategies, in order: a fenced block
// tagged with lang, a bare fenced block, then the whole trimmed text if it
// plausibly is code already (contains a line starting with a definition
// keyword).
func Code(content, lang string) (Result, error) {
	langRe := regexp.MustCompile("(?s)```" + regexp.QuoteMeta(lang) + "\\s*\\n?(.*?)\\n?```")
	if matches := langRe.FindStringSubmatch(content); len(matches) > 1 {
		return Result{Value: strings.TrimSpace(matches[1]), Strategy: "lang-fence"}, nil
	}

	if matches := bareBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		return Result{Value: strings.TrimSpace(matches[1]), Strategy: "bare-fence"}, nil
	}

	trimmed := strings.TrimSpace(content)
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "def ") || strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ") {
			return Result{Value: trimmed, Strategy: "raw-text"}, nil
		}
	}

	return Result{}, ErrNoMatch
}
