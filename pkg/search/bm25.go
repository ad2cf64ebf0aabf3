package search

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters. k1 controls term-frequency saturation, b the strength of
// document-length normalization.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// tokenize lowercases text and splits it on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// bm25Corpus holds the per-corpus statistics needed to score documents
// against a query without re-scanning the candidate set per term.
type bm25Corpus struct {
	docs      [][]string
	docFreq   map[string]int
	avgDocLen float64
}

// newBM25Corpus indexes the candidate documents.
func newBM25Corpus(texts []string) *bm25Corpus {
	c := &bm25Corpus{
		docs:    make([][]string, len(texts)),
		docFreq: make(map[string]int),
	}
	totalLen := 0
	for i, text := range texts {
		tokens := tokenize(text)
		c.docs[i] = tokens
		totalLen += len(tokens)
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				c.docFreq[tok]++
			}
		}
	}
	if len(texts) > 0 {
		c.avgDocLen = float64(totalLen) / float64(len(texts))
	}
	return c
}

// Score computes the BM25 relevance of document i against the query tokens.
// Scores are non-negative; a document sharing no terms with the query scores
// zero.
func (c *bm25Corpus) Score(queryTokens []string, i int) float64 {
	doc := c.docs[i]
	if len(doc) == 0 || c.avgDocLen == 0 {
		return 0
	}
	termFreq := make(map[string]int, len(doc))
	for _, tok := range doc {
		termFreq[tok]++
	}

	n := float64(len(c.docs))
	score := 0.0
	for _, term := range queryTokens {
		tf := float64(termFreq[term])
		if tf == 0 {
			continue
		}
		df := float64(c.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(len(doc))/c.avgDocLen))
		score += idf * norm
	}
	return score
}
