package transcript

import (
	"strings"
	"testing"
)

func TestPartialIsReplacedNotAppended(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyPartial("hel")
	tr.ApplyPartial("hello wor")

	if got := tr.Partial(); got != "hello wor" {
		t.Fatalf("unexpected partial: %q", got)
	}
	if got := tr.FinalText(); got != "" {
		t.Fatalf("partials must not reach the final text, got %q", got)
	}
}

func TestFinalClearsPartialAndAppendsOnce(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyPartial("hello wor")
	tr.ApplyFinal("hello world")
	tr.ApplyFinal("second segment")

	if got := tr.Partial(); got != "" {
		t.Fatalf("partial should be cleared after a final, got %q", got)
	}
	if got := tr.FinalText(); got != "hello world second segment" {
		t.Fatalf("unexpected final text: %q", got)
	}
	if segments := tr.Segments(); len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
}

func TestEmptyFinalIsIgnored(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyFinal("   ")
	tr.ApplyFinal("")

	if segments := tr.Segments(); len(segments) != 0 {
		t.Fatalf("blank finals must not be stored, got %v", segments)
	}
}

func TestTailShorterThanLimitReturnsEverything(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyFinal("only fourteen.")

	if got := tr.Tail(2000); got != "only fourteen." {
		t.Fatalf("unexpected tail: %q", got)
	}
}

func TestTailCutsToLastCharacters(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyFinal(strings.Repeat("a", 2500))

	got := tr.Tail(2000)
	if len(got) != 2000 {
		t.Fatalf("expected 2000 characters, got %d", len(got))
	}
	if got != strings.Repeat("a", 2000) {
		t.Fatalf("tail content corrupted")
	}
}

func TestTailCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyFinal(strings.Repeat("é", 10))

	got := tr.Tail(4)
	if got != strings.Repeat("é", 4) {
		t.Fatalf("unexpected rune tail: %q", got)
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.ApplyFinal("something")
	tr.ApplyPartial("pending")
	tr.Reset()

	if tr.FinalText() != "" || tr.Partial() != "" {
		t.Fatalf("reset left content behind")
	}
}
