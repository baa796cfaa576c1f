package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeStripsPunctuationAndLowercases(t *testing.T) {
	got := Terms("Red Fox, quick-ish! (racing)")
	want := []string{"red", "fox", "quick-ish", "racing"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Terms() = %v, want %v", got, want)
	}
}

func TestTokenizePositionsAreSequential(t *testing.T) {
	tokens := Tokenize("alpha beta gamma")
	for i, tok := range tokens {
		if tok.Position != i {
			t.Fatalf("token %d has position %d, want %d", i, tok.Position, i)
		}
	}
}

func TestTokenizeDropsEmptyResults(t *testing.T) {
	got := Terms("-- ... !!")
	if len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestTokenizeIdempotent(t *testing.T) {
	s := "the Quick Brown Fox jumps"
	first := Terms(s)
	second := Terms(strings.Join(first, " "))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("tokenize not idempotent: %v != %v", first, second)
	}
}

func TestTokenizeOneNormalizesSingleWord(t *testing.T) {
	if got := TokenizeOne("Fox,"); got != "fox" {
		t.Fatalf("TokenizeOne() = %q, want fox", got)
	}
	if got := TokenizeOne("!!!"); got != "" {
		t.Fatalf("TokenizeOne() = %q, want empty", got)
	}
}

func TestTokenizeNoStemmingOrStopwords(t *testing.T) {
	got := Terms("the cats are running quickly")
	want := []string{"the", "cats", "are", "running", "quickly"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Terms() = %v, want %v (no stemming/stopwords expected)", got, want)
	}
}
