package classify

import (
	"strings"
	"testing"
)

func TestClassify_KnownKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{"syntax", "Traceback (most recent call last):\n  File \"<string>\", line 2\nSyntaxError: invalid syntax", KindSyntaxError},
		{"indentation maps to syntax", "IndentationError: unexpected indent", KindSyntaxError},
		{"key", "Traceback (most recent call last):\nKeyError: 'ipc_code'", KindKeyError},
		{"type", "TypeError: unsupported operand type(s)", KindTypeError},
		{"attribute maps to type", "AttributeError: 'DataFrame' object has no attribute 'appendd'", KindTypeError},
		{"value", "ValueError: could not convert string to float", KindValueError},
		{"import", "ImportError: cannot import name 'LDA'", KindImportError},
		{"module maps to import", "ModuleNotFoundError: No module named 'bertopic'", KindImportError},
		{"file", "FileNotFoundError: [Errno 2] No such file or directory: 'outputs/step_1_results.csv'", KindFileNotFoundError},
		{"timeout", "process timed out after 30s", KindTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Classify(tc.raw)
			if rec.Kind != tc.want {
				t.Errorf("Classify(%q) kind = %s, want %s", tc.raw, rec.Kind, tc.want)
			}
			if rec.Detail == "" {
				t.Error("detail should not be empty")
			}
		})
	}
}

func TestClassify_OrderedMatching(t *testing.T) {
	// A KeyError raised while importing should still classify by the first
	// marker in order, not by whichever substring happens to appear later.
	raw := "SyntaxError: invalid syntax\nKeyError: 'x'"
	rec := Classify(raw)
	if rec.Kind != KindSyntaxError {
		t.Errorf("expected first marker to win, got %s", rec.Kind)
	}
}

func TestClassify_UnknownTruncates(t *testing.T) {
	raw := strings.Repeat("x", 500)
	rec := Classify(raw)
	if rec.Kind != KindUnknown {
		t.Fatalf("expected UnknownError, got %s", rec.Kind)
	}
	if len(rec.Detail) != maxDetailLen {
		t.Errorf("detail length = %d, want %d", len(rec.Detail), maxDetailLen)
	}
}

func TestClassify_DetailIsLastLine(t *testing.T) {
	raw := "Traceback (most recent call last):\n  File \"<string>\", line 3, in <module>\nKeyError: 'title'\n"
	rec := Classify(raw)
	if rec.Detail != "KeyError: 'title'" {
		t.Errorf("detail = %q, want last traceback line", rec.Detail)
	}
}

func TestIsRepeated(t *testing.T) {
	history := []Record{
		{Kind: KindTypeError},
		{Kind: KindKeyError},
		{Kind: KindKeyError},
	}

	if !IsRepeated(history, KindKeyError, 2) {
		t.Error("two trailing KeyErrors should count as repeated")
	}
	if IsRepeated(history, KindTypeError, 2) {
		t.Error("TypeError is not the trailing kind")
	}
	if IsRepeated(history[:1], KindTypeError, 2) {
		t.Error("history shorter than threshold is never repeated")
	}
	if !IsRepeated(history, KindKeyError, 0) {
		t.Error("threshold below one should behave as one")
	}
}

func TestHint_KeyErrorInjectsColumns(t *testing.T) {
	hint := Hint(KindKeyError, []string{"title", "abstract"})
	if !strings.Contains(hint, "title, abstract") {
		t.Errorf("hint should name the available columns, got %q", hint)
	}

	hint = Hint(KindKeyError, nil)
	if !strings.Contains(hint, "(unknown)") {
		t.Errorf("hint without columns should say unknown, got %q", hint)
	}
}

func TestHint_UnknownKindFallsBack(t *testing.T) {
	hint := Hint(KindUnknown, nil)
	if hint == "" {
		t.Error("every kind should produce some hint")
	}
}

func TestStrategyAdvice(t *testing.T) {
	if StrategyAdvice(KindValueError) == StrategyAdvice(KindUnknown) {
		t.Error("ValueError should carry its own advice")
	}
	if StrategyAdvice(KindUnknown) == "" {
		t.Error("unknown kinds should fall back to generic advice")
	}
}
