// Package scoring computes similarity scores in [0,1] between a solver's
// prediction and one or more human reference answers, dispatched by field
// kind. The engine is stateless with respect to invocation: it may be shared
// across evaluation workers without locking.
package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"formeval/internal/field"

	"go.uber.org/zap"
)

// ErrUnsupportedKind is returned when a field kind with no defined metric
// reaches the engine. Callers must surface it rather than score zero
// silently.
var ErrUnsupportedKind = errors.New("no scoring metric for field kind")

// Engine scores predictions against gold references.
type Engine struct {
	tok Tokenizer
	log *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenizer replaces the default stem tokenizer, e.g. with the subword
// tokenizer for cross-lingual runs.
func WithTokenizer(t Tokenizer) Option {
	return func(e *Engine) { e.tok = t }
}

// WithLogger attaches a logger for per-field score tracing.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine builds an Engine with the default stem tokenizer.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tok: NewStemTokenizer(),
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Prediction flattens a record's raw extracted values into the single
// prediction string the engine scores. Checkboxes join their checked options
// with "|"; every other kind takes the first value, or the empty string when
// nothing was extracted.
func Prediction(rec field.Record) string {
	if rec.Kind == field.KindCheckbox {
		return strings.Join(rec.Values, "|")
	}
	if len(rec.Values) > 0 {
		return rec.Values[0]
	}
	return ""
}

// Score computes the similarity between prediction and references for the
// given kind. Missing-value markers in references are normalized to the
// empty string first; an empty reference list is matched exactly by an empty
// prediction and by nothing else.
func (e *Engine) Score(kind field.Kind, prediction string, references []string) (float64, error) {
	refs := normalizeReferences(references)

	if len(refs) == 0 {
		if emptyPrediction(prediction) {
			return 1.0, nil
		}
		return 0.0, nil
	}

	var score float64
	switch kind {
	case field.KindText, field.KindTextarea, field.KindHidden:
		score = e.rougeMax(prediction, refs)
	case field.KindRadio, field.KindSelect:
		score = ExactMatch(prediction, MajorityVote(refs))
	case field.KindCheckbox:
		pred := sortOptionSet(prediction)
		score = MaxOverReferences(ExactMatch, pred, canonicalOptionSets(refs))
	case field.KindRange:
		score = e.scoreRange(prediction, refs)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	e.log.Debug("scored field",
		zap.String("kind", string(kind)),
		zap.String("prediction", prediction),
		zap.Strings("references", refs),
		zap.Float64("score", score))
	return score, nil
}

// MaxOverReferences is the shared reducer: the best metric value of the
// prediction against any single reference. Used uniformly except where
// majority vote intentionally replaces it.
func MaxOverReferences(metric func(prediction, reference string) float64, prediction string, references []string) float64 {
	best := 0.0
	for _, ref := range references {
		if s := metric(prediction, ref); s > best {
			best = s
		}
	}
	return best
}

// rougeMax scores free-text kinds: the best ROUGE-L F-measure against any
// reference, with an exact-equality shortcut that skips tokenization.
func (e *Engine) rougeMax(prediction string, refs []string) float64 {
	predTokens := e.tok.Tokenize(prediction)
	return MaxOverReferences(func(pred, ref string) float64 {
		if pred == ref {
			return 1.0
		}
		return rougeL(predTokens, e.tok.Tokenize(ref))
	}, prediction, refs)
}

// MajorityVote returns the most frequent reference, ties broken by the value
// seen first. Multiple annotators answering a single-choice field are
// reconciled to one canonical answer before comparison. Panics on an empty
// slice; callers normalize first.
func MajorityVote(refs []string) string {
	counts := make(map[string]int, len(refs))
	var order []string
	for _, r := range refs {
		if counts[r] == 0 {
			order = append(order, r)
		}
		counts[r]++
	}
	winner := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[winner] {
			winner = v
		}
	}
	return winner
}

// canonicalOptionSets sorts each pipe-delimited reference so checkbox
// comparison ignores option order on both sides.
func canonicalOptionSets(refs []string) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = sortOptionSet(r)
	}
	return out
}

// scoreRange interprets prediction and references numerically:
// 1 - min_i|ref_i - pred| / max(refs). The min means the prediction only has
// to be close to one annotator. A non-positive denominator leaves the
// distance unnormalized; the result is floored at zero to stay within the
// contract range. A parse failure on any value falls back to exact matching.
func (e *Engine) scoreRange(prediction string, refs []string) float64 {
	pred, err := strconv.ParseFloat(strings.TrimSpace(prediction), 64)
	if err != nil {
		return MaxOverReferences(ExactMatch, prediction, refs)
	}

	minDist := 0.0
	maxRef := 0.0
	for i, r := range refs {
		v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return MaxOverReferences(ExactMatch, prediction, refs)
		}
		d := v - pred
		if d < 0 {
			d = -d
		}
		if i == 0 || d < minDist {
			minDist = d
		}
		if i == 0 || v > maxRef {
			maxRef = v
		}
	}

	if maxRef > 0 {
		minDist /= maxRef
	}
	score := 1 - minDist
	if score < 0 {
		score = 0
	}
	return score
}
