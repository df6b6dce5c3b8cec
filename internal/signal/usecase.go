package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/cortexrouter/semantic-proxy/internal/classifier"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

const useCasePromptTemplate = `Classify the following request into exactly one of these use cases:
%s

Respond with only the matching use case label, on a single line.

Request:
%s`

const punctuationToStrip = ".,;:!?"

// UseCaseComputer emits a UseCaseSignal by matching a completion against a
// configured set of candidate labels.
type UseCaseComputer struct {
	Runtime *classifier.Runtime
}

// Compute runs the classifier and returns the UseCaseSignal if its
// confidence meets the configured threshold.
func (u *UseCaseComputer) Compute(ctx context.Context, cfg routerconfig.SignalConfig, content string) (routerconfig.Signal, bool, error) {
	if len(cfg.Labels) == 0 {
		return nil, false, proxyerr.ConfigError("use_case signal config has no labels")
	}

	bulleted := make([]string, len(cfg.Labels))
	maxLabelLen := 0

	for i, l := range cfg.Labels {
		bulleted[i] = "- " + l

		if len(l) > maxLabelLen {
			maxLabelLen = len(l)
		}
	}

	prompt := fmt.Sprintf(useCasePromptTemplate, strings.Join(bulleted, "\n"), content)

	result, err := u.Runtime.Complete(ctx, cfg.ClassifierModelPath, classifier.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   maxLabelLen + 10,
		Temperature: 0,
	})
	if err != nil {
		return nil, false, err
	}

	label, confidence := matchUseCase(result.Text, cfg.Labels)

	metrics.SignalComputedTotal.WithLabelValues(string(routerconfig.SignalTypeUseCase)).Inc()
	metrics.SignalConfidence.WithLabelValues(string(routerconfig.SignalTypeUseCase)).Observe(confidence)
	signalLog.Info("signal computed", "signal_type", routerconfig.SignalTypeUseCase, "value", label, "confidence", confidence)

	sig := routerconfig.UseCaseSignal{Label: label, Confidence: confidence}
	if confidence < cfg.ConfidenceThreshold {
		return sig, false, nil
	}

	return sig, true, nil
}

// normalize lowercases and strips surrounding punctuation, matching spec
// §4.2 step 1.
func normalize(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), punctuationToStrip))
}

// labelSource adapts a label slice to sahilm/fuzzy's Source interface, the
// same idiom used by the pack's secret-name fuzzy search.
type labelSource []string

func (l labelSource) String(i int) string { return l[i] }
func (l labelSource) Len() int            { return len(l) }

const fuzzyCutoff = 0.6

// matchUseCase implements spec §4.2's three-tier resolution: exact
// normalized match, then fuzzy (LCS-style) match above a cutoff, then the
// raw completion text as a last resort.
func matchUseCase(completion string, labels []string) (string, float64) {
	normalizedCompletion := normalize(completion)

	normalizedLabels := make([]string, len(labels))
	for i, l := range labels {
		normalizedLabels[i] = normalize(l)
	}

	for i, nl := range normalizedLabels {
		if nl == normalizedCompletion {
			return labels[i], 0.95
		}
	}

	matches := fuzzy.FindFrom(normalizedCompletion, labelSource(normalizedLabels))
	if len(matches) > 0 {
		best := matches[0]

		score := fuzzySimilarity(normalizedCompletion, normalizedLabels[best.Index])
		if score >= fuzzyCutoff {
			return labels[best.Index], 0.70
		}
	}

	return strings.TrimSpace(completion), 0.40
}

// fuzzySimilarity normalizes sahilm/fuzzy's match length against the
// longer of the two strings, producing a 0..1 similarity comparable to the
// spec's "cutoff 0.6" LCS-style ratio.
func fuzzySimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	matches := fuzzy.Find(a, []string{b})
	if len(matches) == 0 {
		return 0
	}

	matched := len(matches[0].MatchedIndexes)

	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}

	return float64(matched) / float64(longer)
}
