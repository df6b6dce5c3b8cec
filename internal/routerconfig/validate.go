package routerconfig

import (
	"fmt"

	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
)

// Validate enforces spec §4.6's load-time invariants, indexes the Model
// table, and records the unique default Model. Fatal on failure — callers
// are expected to exit the process non-zero.
func (rc *RouterConfig) Validate() error {
	rc.modelsByName = make(map[string]Model, len(rc.Models))

	defaultCount := 0

	for _, m := range rc.Models {
		if m.Name == "" {
			return proxyerr.ConfigError("model entry missing name")
		}

		if _, dup := rc.modelsByName[m.Name]; dup {
			return proxyerr.ConfigError("duplicate model name %q", m.Name)
		}

		if m.ModelType != ModelTypeOpenAI && m.ModelType != ModelTypeLocal {
			return proxyerr.ConfigError("model %q has unknown model_type %q", m.Name, m.ModelType)
		}

		rc.modelsByName[m.Name] = m

		if m.IsDefault {
			defaultCount++
			rc.defaultModel = m.Name
		}
	}

	// At most one default: appconfig.Config.Validate enforces that a
	// default model or upstream_base exists, so zero defaults here is
	// legal (the upstream_base fallback covers that case).
	if defaultCount > 1 {
		return proxyerr.ConfigError("at most one model may be is_default, found %d", defaultCount)
	}

	for _, sc := range rc.Signals {
		if err := sc.validate(); err != nil {
			return err
		}
	}

	seenDecisions := make(map[string]bool, len(rc.Decisions))

	for _, dc := range rc.Decisions {
		if dc.Name == "" {
			return proxyerr.ConfigError("decision entry missing name")
		}

		if seenDecisions[dc.Name] {
			return proxyerr.ConfigError("duplicate decision name %q", dc.Name)
		}

		seenDecisions[dc.Name] = true

		if _, ok := rc.modelsByName[dc.ModelRef]; !ok {
			return proxyerr.ConfigError("decision %q references unknown model %q", dc.Name, dc.ModelRef)
		}

		if dc.Operator != RuleAND && dc.Operator != RuleOR {
			return proxyerr.ConfigError("decision %q has unknown operator %q", dc.Name, dc.Operator)
		}

		if len(dc.Rules) == 0 {
			// Empty rule list is only legal for a default fallback decision:
			// under AND it trivially passes (m==k==0), which the engine
			// treats as a zero-confidence match. We allow it but note it's
			// only meaningful as a catch-all placed last.
			continue
		}

		for i, c := range dc.Rules {
			if err := c.validate(); err != nil {
				return fmt.Errorf("decision %q rule %d: %w", dc.Name, i, err)
			}
		}
	}

	return nil
}

func (sc SignalConfig) validate() error {
	switch sc.SignalType {
	case SignalTypeComplexity:
	case SignalTypeUseCase:
		if len(sc.Labels) == 0 {
			return proxyerr.ConfigError("use_case signal config requires a non-empty label list")
		}
	default:
		return proxyerr.ConfigError("unknown signal_type %q", sc.SignalType)
	}

	if sc.ConfidenceThreshold < 0 || sc.ConfidenceThreshold > 1 {
		return proxyerr.ConfigError("confidence_threshold %v out of range [0,1]", sc.ConfidenceThreshold)
	}

	return nil
}

// validate enforces operator legality per signal type (spec §4.3): GT/LT
// are only legal for the numeric Complexity signal; EQ/NEQ are legal for
// both. This is a config-load-time check — it never fails at request time.
func (c Condition) validate() error {
	switch c.Expected.SignalType {
	case SignalTypeComplexity:
		switch c.Operator {
		case OpEQ, OpNE, OpGT, OpLT:
		default:
			return proxyerr.ConfigError("unknown operator %q for complexity signal", c.Operator)
		}
	case SignalTypeUseCase:
		switch c.Operator {
		case OpEQ, OpNE:
		case OpGT, OpLT:
			return proxyerr.ConfigError("operator %q is invalid for use_case signal (categorical)", c.Operator)
		default:
			return proxyerr.ConfigError("unknown operator %q for use_case signal", c.Operator)
		}
	default:
		return proxyerr.ConfigError("condition references unknown signal_type %q", c.Expected.SignalType)
	}

	return nil
}
