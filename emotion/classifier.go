// Package emotion turns raw per-label classifier scores into detailed and
// general emotion labels.
package emotion

import (
	"context"
	"sort"
	"strings"
)

// DefaultThreshold is the tuned decision threshold for the fine-tuned
// GoEmotions model.
const DefaultThreshold = 0.57

// Neutral is shown when no general emotion was detected.
const Neutral = "Neutral"

// Result is the outcome of classifying one transcript.
type Result struct {
	Detailed []string
	General  []string
	Scores   map[string]float64
}

// Display joins the general labels for the client, or returns "Neutral".
func (r Result) Display() string {
	if len(r.General) == 0 {
		return Neutral
	}
	return strings.Join(r.General, ", ")
}

// Scorer yields the model's independent (sigmoid) score for every label.
type Scorer interface {
	Scores(ctx context.Context, text string) (map[string]float64, error)
}

type Classifier struct {
	scorer    Scorer
	threshold float64
	labels    LabelMap
}

func NewClassifier(s Scorer, threshold float64, labels LabelMap) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if labels == nil {
		labels = DefaultLabelMap()
	}
	return &Classifier{scorer: s, threshold: threshold, labels: labels}
}

// ClassifyEmotion keeps every label scoring at or above the threshold, in
// label order, and maps each to its general bucket. General labels are
// deduplicated. Blank text is not sent to the model.
func (c *Classifier) ClassifyEmotion(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}
	scores, err := c.scorer.Scores(ctx, text)
	if err != nil {
		return Result{}, err
	}

	names := make([]string, 0, len(scores))
	for name, score := range scores {
		if score >= c.threshold {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	res := Result{}
	if len(names) == 0 {
		return res, nil
	}
	res.Scores = make(map[string]float64, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		res.Detailed = append(res.Detailed, name)
		res.Scores[name] = scores[name]
		g := c.labels.General(name)
		if !seen[g] {
			seen[g] = true
			res.General = append(res.General, g)
		}
	}
	return res, nil
}
