package embedding

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/stratamem/strata/internal/vecmath"
)

// TFIDF is the offline fallback: bag-of-words TF-IDF vectors over a fixed
// vocabulary built from the existing corpus. Quality is modest but it needs
// no model server and degrades gracefully to keyword-ish similarity.
type TFIDF struct {
	vocab []string
	idf   map[string]float64
	dims  int
}

// NewTFIDF builds the vocabulary from the given documents, keeping the top
// maxTerms terms by document frequency.
func NewTFIDF(docs []string, maxTerms int) *TFIDF {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	dims := maxTerms
	if len(terms) < dims {
		dims = len(terms)
	}
	if dims == 0 {
		dims = 1 // avoid zero-length vectors on an empty corpus
	}

	vocab := make([]string, dims)
	idf := make(map[string]float64, dims)
	numDocs := float64(len(docs))
	if numDocs == 0 {
		numDocs = 1
	}
	for i := 0; i < dims && i < len(terms); i++ {
		vocab[i] = terms[i].term
		idf[vocab[i]] = math.Log(numDocs/float64(terms[i].freq)) + 1.0
	}

	return &TFIDF{vocab: vocab, idf: idf, dims: dims}
}

func (t *TFIDF) Model() string   { return "tfidf" }
func (t *TFIDF) Dimensions() int { return t.dims }

func (t *TFIDF) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, t.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokens {
		tf[tok]++
		if tf[tok] > maxTF {
			maxTF = tf[tok]
		}
	}

	for i, term := range t.vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		// Augmented TF so long documents don't dominate.
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		idf := t.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[i] = float32(augTF * idf)
	}

	vecmath.Normalize(vec)
	return vec, nil
}

func (t *TFIDF) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchOneByOne(ctx, t, texts)
}

// tokenize splits text into lowercase word tokens, dropping single-char
// noise.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
