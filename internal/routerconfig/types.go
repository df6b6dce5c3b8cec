// Package routerconfig holds the process-wide router configuration model
// (spec §3, §4.6): Models, SignalConfigs, DecisionConfigs, and the
// RouterConfig that binds them together. Loaded once at startup and
// treated as immutable by the pipeline.
package routerconfig

// ModelType distinguishes how an upstream Model is reached.
type ModelType string

const (
	ModelTypeOpenAI ModelType = "openai"
	ModelTypeLocal  ModelType = "local"
)

// Model is an upstream endpoint descriptor.
type Model struct {
	Name      string    `yaml:"name"`
	Endpoint  string    `yaml:"endpoint"`
	AccessKey string    `yaml:"access_key"`
	ModelType ModelType `yaml:"model_type"`
	IsDefault bool      `yaml:"is_default"`
	LocalPath string    `yaml:"local_path,omitempty"`
}

// SignalType identifies which kind of signal a SignalConfig produces.
type SignalType string

const (
	SignalTypeComplexity SignalType = "complexity"
	SignalTypeUseCase    SignalType = "use_case"
)

// SignalConfig describes how to produce one signal.
type SignalConfig struct {
	SignalType          SignalType `yaml:"signal_type"`
	ConfidenceThreshold  float64    `yaml:"confidence_threshold"`
	ClassifierModelPath string     `yaml:"classifier_model_path"`
	// Labels carries the candidate label set for use_case signals; must be
	// non-empty when SignalType == SignalTypeUseCase.
	Labels []string `yaml:"labels,omitempty"`
}

// Operator is a condition's comparison operator.
type Operator string

const (
	OpEQ Operator = "EQ"
	OpNE Operator = "NEQ"
	OpGT Operator = "GT"
	OpLT Operator = "LT"
)

// ExpectedSignal is the right-hand side of a Condition: the signal type the
// condition applies to plus the expected value for that type.
type ExpectedSignal struct {
	SignalType SignalType `yaml:"signal_type"`
	// NumericValue is used when SignalType == SignalTypeComplexity.
	NumericValue float64 `yaml:"numeric_value,omitempty"`
	// Label is used when SignalType == SignalTypeUseCase.
	Label string `yaml:"label,omitempty"`
}

// Condition is a single atomic predicate over one signal type.
type Condition struct {
	Expected ExpectedSignal `yaml:"expected_signal"`
	Operator Operator       `yaml:"operator"`
}

// RuleOperator combines a DecisionConfig's rule list.
type RuleOperator string

const (
	RuleAND RuleOperator = "AND"
	RuleOR  RuleOperator = "OR"
)

// DecisionConfig binds a rule set to an upstream Model.
type DecisionConfig struct {
	Name     string       `yaml:"name"`
	ModelRef string       `yaml:"model_ref"`
	Rules    []Condition  `yaml:"rules"`
	Operator RuleOperator `yaml:"operator"`
}

// RouterConfig is the process-wide, read-mostly routing configuration.
type RouterConfig struct {
	Models    []Model          `yaml:"models"`
	Decisions []DecisionConfig `yaml:"decisions"`
	Signals   []SignalConfig   `yaml:"signals"`

	// modelsByName is built at Validate time for O(1) lookups.
	modelsByName map[string]Model
	defaultModel string
}

// ModelByName resolves a Model by its logical name.
func (rc *RouterConfig) ModelByName(name string) (Model, bool) {
	m, ok := rc.modelsByName[name]
	return m, ok
}

// DefaultModel returns the unique Model flagged is_default.
func (rc *RouterConfig) DefaultModel() (Model, bool) {
	if rc.defaultModel == "" {
		return Model{}, false
	}

	return rc.ModelByName(rc.defaultModel)
}
