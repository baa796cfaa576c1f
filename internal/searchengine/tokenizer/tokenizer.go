// Package tokenizer splits text into the lowercased terms the document
// store indexes and queries reuse.
package tokenizer

import "strings"

// Token is one term emitted from a text field, along with its 0-based
// ordinal within that field's token stream.
type Token struct {
	Term     string
	Position int
}

// isASCIIPunct reports whether b is one of the ASCII punctuation bytes
// ispunct(3) recognizes. Tokenization is byte-wise and Unicode-unaware by
// design: only leading/trailing ASCII punctuation is stripped from a word.
func isASCIIPunct(b byte) bool {
	switch {
	case b >= '!' && b <= '/':
		return true
	case b >= ':' && b <= '@':
		return true
	case b >= '[' && b <= '`':
		return true
	case b >= '{' && b <= '~':
		return true
	default:
		return false
	}
}

func asciiLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}

func trimPunct(word string) string {
	start, end := 0, len(word)
	for start < end && isASCIIPunct(word[start]) {
		start++
	}
	for end > start && isASCIIPunct(word[end-1]) {
		end--
	}
	return word[start:end]
}

func foldLower(word string) string {
	out := make([]byte, len(word))
	for i := 0; i < len(word); i++ {
		out[i] = asciiLower(word[i])
	}
	return string(out)
}

// Tokenize splits text on whitespace, strips surrounding ASCII
// punctuation from each word, lowercases it, and drops anything left
// empty. It performs no stemming, stopword removal, or synonym
// expansion: tokens(tokens(s).join(" ")) always equals tokens(s) for any
// s free of internal punctuation, which is what phrase/match queries
// depend on for round-trip matching against stored positions.
func Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, 0, len(fields))
	pos := 0
	for _, word := range fields {
		trimmed := trimPunct(word)
		if trimmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: foldLower(trimmed), Position: pos})
		pos++
	}
	return tokens
}

// Terms is a convenience wrapper returning only the term strings, in
// order, dropping position information.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// TokenizeOne normalizes a single query term the same way Tokenize
// would: strips surrounding punctuation and lowercases it. It returns
// the empty string if nothing survives, so callers can treat that as
// "no such term" without indexing it.
func TokenizeOne(word string) string {
	return foldLower(trimPunct(word))
}
