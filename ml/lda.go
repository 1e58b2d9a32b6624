package ml

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// LDAConfig controls latent Dirichlet allocation fitting. Zero values fall
// back to the defaults noted per field.
type LDAConfig struct {
	Topics     int     // required, >= 2
	Alpha      float64 // doc-topic prior, default 50/Topics
	Beta       float64 // topic-word prior, default 0.01
	Iterations int     // Gibbs sweeps, default 200
	Seed       int64   // default 1
}

func (c LDAConfig) withDefaults() (LDAConfig, error) {
	if c.Topics < 2 {
		return c, fmt.Errorf("LDA needs at least 2 topics, got %d", c.Topics)
	}
	if c.Alpha <= 0 {
		c.Alpha = 50 / float64(c.Topics)
	}
	if c.Beta <= 0 {
		c.Beta = 0.01
	}
	if c.Iterations <= 0 {
		c.Iterations = 200
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c, nil
}

// LDAModel is a topic model fitted by collapsed Gibbs sampling.
type LDAModel struct {
	Config LDAConfig
	Vocab  []string

	// TopicWord[k][v] is P(word v | topic k); DocTopic[d][k] is
	// P(topic k | document d).
	TopicWord [][]float64
	DocTopic  [][]float64
}

// FitLDA fits a topic model over documents given as whitespace-separated
// token strings. Tokens are lowercased; empty documents are allowed but
// contribute nothing.
func FitLDA(docs []string, cfg LDAConfig) (*LDAModel, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	// Tokenize and build the vocabulary.
	tokenized := make([][]int, len(docs))
	wordIndex := make(map[string]int)
	var vocab []string
	totalTokens := 0
	for d, doc := range docs {
		fields := strings.Fields(strings.ToLower(doc))
		ids := make([]int, 0, len(fields))
		for _, w := range fields {
			id, ok := wordIndex[w]
			if !ok {
				id = len(vocab)
				wordIndex[w] = id
				vocab = append(vocab, w)
			}
			ids = append(ids, id)
		}
		tokenized[d] = ids
		totalTokens += len(ids)
	}
	if totalTokens == 0 {
		return nil, fmt.Errorf("no tokens in %d documents", len(docs))
	}

	k := cfg.Topics
	v := len(vocab)
	nDocs := len(docs)

	docTopicCount := make([][]int, nDocs)
	for d := range docTopicCount {
		docTopicCount[d] = make([]int, k)
	}
	topicWordCount := make([][]int, k)
	for t := range topicWordCount {
		topicWordCount[t] = make([]int, v)
	}
	topicTotal := make([]int, k)

	// Random topic initialization.
	rng := rand.New(rand.NewSource(cfg.Seed))
	assignments := make([][]int, nDocs)
	for d, ids := range tokenized {
		assignments[d] = make([]int, len(ids))
		for i, w := range ids {
			t := rng.Intn(k)
			assignments[d][i] = t
			docTopicCount[d][t]++
			topicWordCount[t][w]++
			topicTotal[t]++
		}
	}

	// Collapsed Gibbs sweeps.
	probs := make([]float64, k)
	vBeta := float64(v) * cfg.Beta
	for iter := 0; iter < cfg.Iterations; iter++ {
		for d, ids := range tokenized {
			for i, w := range ids {
				old := assignments[d][i]
				docTopicCount[d][old]--
				topicWordCount[old][w]--
				topicTotal[old]--

				total := 0.0
				for t := 0; t < k; t++ {
					p := (float64(docTopicCount[d][t]) + cfg.Alpha) *
						(float64(topicWordCount[t][w]) + cfg.Beta) /
						(float64(topicTotal[t]) + vBeta)
					probs[t] = p
					total += p
				}
				u := rng.Float64() * total
				next := k - 1
				acc := 0.0
				for t := 0; t < k; t++ {
					acc += probs[t]
					if u < acc {
						next = t
						break
					}
				}

				assignments[d][i] = next
				docTopicCount[d][next]++
				topicWordCount[next][w]++
				topicTotal[next]++
			}
		}
	}

	// Posterior means.
	topicWord := make([][]float64, k)
	for t := 0; t < k; t++ {
		topicWord[t] = make([]float64, v)
		denom := float64(topicTotal[t]) + vBeta
		for w := 0; w < v; w++ {
			topicWord[t][w] = (float64(topicWordCount[t][w]) + cfg.Beta) / denom
		}
	}
	docTopic := make([][]float64, nDocs)
	kAlpha := float64(k) * cfg.Alpha
	for d := 0; d < nDocs; d++ {
		docTopic[d] = make([]float64, k)
		denom := float64(len(tokenized[d])) + kAlpha
		for t := 0; t < k; t++ {
			docTopic[d][t] = (float64(docTopicCount[d][t]) + cfg.Alpha) / denom
		}
	}

	return &LDAModel{
		Config:    cfg,
		Vocab:     vocab,
		TopicWord: topicWord,
		DocTopic:  docTopic,
	}, nil
}

// FitLDAFromTable fits a topic model over a text column of a table.
func FitLDAFromTable(data Tabular, column string, cfg LDAConfig) (*LDAModel, error) {
	docs, err := data.Strings(column)
	if err != nil {
		return nil, err
	}
	return FitLDA(docs, cfg)
}

// TopWords returns the n highest-probability words for a topic.
func (m *LDAModel) TopWords(topic, n int) []string {
	if topic < 0 || topic >= len(m.TopicWord) {
		return nil
	}
	idx := make([]int, len(m.Vocab))
	for i := range idx {
		idx[i] = i
	}
	weights := m.TopicWord[topic]
	sort.Slice(idx, func(a, b int) bool { return weights[idx[a]] > weights[idx[b]] })
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = m.Vocab[idx[i]]
	}
	return out
}

// DominantTopic returns the most probable topic for a document.
func (m *LDAModel) DominantTopic(doc int) int {
	if doc < 0 || doc >= len(m.DocTopic) {
		return -1
	}
	return argmax(m.DocTopic[doc])
}

// Summary lists each topic's top words.
func (m *LDAModel) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LDA: %d topics over %d terms, %d documents\n",
		m.Config.Topics, len(m.Vocab), len(m.DocTopic))
	for t := 0; t < m.Config.Topics; t++ {
		fmt.Fprintf(&b, "Topic %d: %s\n", t, strings.Join(m.TopWords(t, 8), " "))
	}
	return b.String()
}
