// Package signal implements the C2 signal computers: turning raw user
// content into typed Signals via the classifier runtime (spec §4.2).
package signal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cortexrouter/semantic-proxy/internal/classifier"
	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

var signalLog = logging.WithComponent("signal")

const complexityPromptTemplate = `Rate the complexity of the following request on a scale from 0 to 10, where 0 is trivial and 10 is extremely complex. Respond with only the number.

Request:
%s`

// ComplexityComputer emits a ComplexitySignal from a completion that is
// expected to be a single number 0-10.
type ComplexityComputer struct {
	Runtime *classifier.Runtime
}

// Compute runs the classifier and returns the ComplexitySignal if its
// confidence meets the configured threshold.
func (c *ComplexityComputer) Compute(ctx context.Context, cfg routerconfig.SignalConfig, content string) (routerconfig.Signal, bool, error) {
	prompt := fmt.Sprintf(complexityPromptTemplate, content)

	result, err := c.Runtime.Complete(ctx, cfg.ClassifierModelPath, classifier.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		return nil, false, err
	}

	score, confidence, err := parseComplexity(result.Text)
	if err != nil {
		return nil, false, proxyerr.ParseError("complexity completion", err)
	}

	metrics.SignalComputedTotal.WithLabelValues(string(routerconfig.SignalTypeComplexity)).Inc()
	metrics.SignalConfidence.WithLabelValues(string(routerconfig.SignalTypeComplexity)).Observe(confidence)
	signalLog.Info("signal computed", "signal_type", routerconfig.SignalTypeComplexity, "value", score, "confidence", confidence)

	sig := routerconfig.ComplexitySignal{Score: score, Confidence: confidence}
	if confidence < cfg.ConfidenceThreshold {
		return sig, false, nil
	}

	return sig, true, nil
}

// parseComplexity extracts the first numeric token from text (stripping a
// trailing comma), clamps it to [0.0, 10.0], and derives the confidence
// heuristic: 0.95 when the stripped completion is exactly that number,
// else 0.60.
func parseComplexity(text string) (float64, float64, error) {
	trimmed := strings.TrimSpace(text)

	token, rest := firstNumericToken(trimmed)
	if token == "" {
		return 0, 0, fmt.Errorf("no numeric token in completion %q", text)
	}

	score, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing numeric token %q: %w", token, err)
	}

	if score < 0 {
		score = 0
	}

	if score > 10 {
		score = 10
	}

	confidence := 0.60
	if rest == "" {
		confidence = 0.95
	}

	return score, confidence, nil
}

// firstNumericToken scans text for the first run of digits (with an
// optional single decimal point and an optional leading minus sign),
// strips a trailing comma, and returns the token plus whatever text
// remains once the token, that comma, and the whitespace around them are
// removed.
func firstNumericToken(text string) (token string, rest string) {
	digitStart := -1

	for i, r := range text {
		if r >= '0' && r <= '9' {
			digitStart = i
			break
		}
	}

	if digitStart == -1 {
		return "", text
	}

	tokenStart := digitStart
	if digitStart > 0 && text[digitStart-1] == '-' {
		tokenStart = digitStart - 1
	}

	end := digitStart
	sawDot := false

	for end < len(text) {
		r := text[end]
		if r >= '0' && r <= '9' {
			end++
			continue
		}

		if r == '.' && !sawDot {
			sawDot = true
			end++

			continue
		}

		break
	}

	token = text[tokenStart:end]
	if end < len(text) && text[end] == ',' {
		end++
	}

	before := strings.TrimSpace(text[:tokenStart])
	after := strings.TrimSpace(text[end:])

	return token, before + after
}
