package tokenize

import "testing"

func TestQGramLengthOne(t *testing.T) {
	p := QGram("a")
	if len(p) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(p))
	}
	runes := []rune(p[0].Token)
	if runes[0] != 'a' || runes[1] != 0 {
		t.Fatalf("expected (a,0), got %v", runes)
	}
}

func TestQGramOverlap(t *testing.T) {
	p := QGram("abcdef")
	if len(p) != 6 {
		t.Fatalf("expected 6 postings for 6 runes, got %d", len(p))
	}
	if p[0].Token != "ab" || p[4].Token != "ef" {
		t.Fatalf("unexpected tokens: %q %q", p[0].Token, p[4].Token)
	}
	last := p[len(p)-1]
	if []rune(last.Token)[1] != 0 {
		t.Fatalf("last qgram should have trailing zero code unit")
	}
}

func TestQGramEmpty(t *testing.T) {
	if p := QGram(""); p != nil {
		t.Fatalf("expected nil for empty input, got %v", p)
	}
}

func TestWordsDedupWithinRecord(t *testing.T) {
	p := Words("red apple red", "")
	if len(p) != 2 {
		t.Fatalf("expected 2 distinct words, got %d: %v", len(p), p)
	}
}

func TestWordsDropsEmpty(t *testing.T) {
	p := Words("  a   b  ", "")
	if len(p) != 2 {
		t.Fatalf("expected 2 words, got %d", len(p))
	}
}

func TestSanitizeWord(t *testing.T) {
	got := SanitizeWord("a\tb\nc")
	if got != "a b c" {
		t.Fatalf("got %q", got)
	}
}
