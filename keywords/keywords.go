// Package keywords ranks the phrases of an email body so a labeler can
// label it without reading the whole message.
package keywords

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bbalet/stopwords"
)

// stopLang is the stopwords language used when Options.StopWords is nil.
const stopLang = "en"

var ErrInvalidRange = errors.New("invalid n-gram range")

// Keyword is a ranked phrase. Scores are in [0, 1]; the best phrase of a
// text scores 1.
type Keyword struct {
	Phrase string
	Score  float64
}

// Options controls extraction. A nil StopWords uses the English list of
// github.com/bbalet/stopwords; pass an empty slice to disable stop words. Highlight is read by callers that render
// the text and has no effect on the ranking.
type Options struct {
	StopWords []string
	Highlight bool
	TopN      int
	NgramMin  int
	NgramMax  int
}

// DefaultOptions ranks the top five unigrams and bigrams.
func DefaultOptions() Options {
	return Options{TopN: 5, NgramMin: 1, NgramMax: 2}
}

// Extractor ranks the phrases of a text.
type Extractor interface {
	Extract(text string, opts Options) ([]Keyword, error)
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'_-]*`)

// Frequency scores each candidate phrase by the summed term frequency of its
// words, weighted by how often the phrase itself occurs. Candidates never
// begin or end with a stop word.
type Frequency struct{}

// NewFrequency returns a Frequency extractor.
func NewFrequency() *Frequency { return &Frequency{} }

func (f *Frequency) Extract(text string, opts Options) ([]Keyword, error) {
	lo, hi := opts.NgramMin, opts.NgramMax
	if lo == 0 && hi == 0 {
		lo, hi = 1, 1
	}
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrInvalidRange, opts.NgramMin, opts.NgramMax)
	}

	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	stop := stopSet(opts.StopWords, tokens)

	tf := make(map[string]float64)
	total := 0
	for _, tok := range tokens {
		if !stop[tok] {
			tf[tok]++
			total++
		}
	}
	if total == 0 {
		return nil, nil
	}
	for w := range tf {
		tf[w] /= float64(total)
	}

	counts := make(map[string]int)
	weights := make(map[string]float64)
	for n := lo; n <= hi; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := tokens[i : i+n]
			if stop[gram[0]] || stop[gram[n-1]] {
				continue
			}
			phrase := strings.Join(gram, " ")
			if counts[phrase] == 0 {
				var w float64
				for _, tok := range gram {
					w += tf[tok]
				}
				weights[phrase] = w
			}
			counts[phrase]++
		}
	}

	kws := make([]Keyword, 0, len(counts))
	var best float64
	for phrase, c := range counts {
		score := float64(c) * weights[phrase]
		if score > best {
			best = score
		}
		kws = append(kws, Keyword{Phrase: phrase, Score: score})
	}
	for i := range kws {
		kws[i].Score /= best
	}
	sort.Slice(kws, func(i, j int) bool {
		if kws[i].Score != kws[j].Score {
			return kws[i].Score > kws[j].Score
		}
		return kws[i].Phrase < kws[j].Phrase
	})
	if opts.TopN > 0 && len(kws) > opts.TopN {
		kws = kws[:opts.TopN]
	}
	return kws, nil
}

// stopSet returns the stop words among tokens. With no explicit list a
// token is a stop word when the stopwords cleaner leaves nothing of it.
func stopSet(words []string, tokens []string) map[string]bool {
	set := make(map[string]bool)
	if words != nil {
		for _, w := range words {
			set[strings.ToLower(w)] = true
		}
		return set
	}
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if strings.TrimSpace(stopwords.CleanString(tok, stopLang, false)) == "" {
			set[tok] = true
		}
	}
	return set
}

// Phrases returns the phrase of every keyword, in rank order.
func Phrases(kws []Keyword) []string {
	out := make([]string, len(kws))
	for i, kw := range kws {
		out[i] = kw.Phrase
	}
	return out
}

// Highlight wraps every occurrence of the keyword phrases in text with style.
// Matching ignores case and treats any run of whitespace between the words of
// a phrase as a single separator.
func Highlight(text string, kws []Keyword, style func(string) string) string {
	if len(kws) == 0 || style == nil {
		return text
	}
	phrases := Phrases(kws)
	// Longer phrases first so "machine learning" wins over "machine".
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })

	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return text
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllStringFunc(text, style)
}
