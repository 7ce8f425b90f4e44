package moderation

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
)

// Classifier score categories.
const (
	CategoryToxicity   = "toxicity"
	CategoryProfanity  = "profanity"
	CategoryHateSpeech = "hate_speech"
	CategoryThreat     = "threat"
	CategorySelfHarm   = "self_harm"
	CategorySexual     = "sexually_explicit"
)

// Reason codes produced by the classifier stage.
const (
	ReasonClassifierError  = "classifier_error"
	ReasonAgeInappropriate = "age_inappropriate"
)

// highRiskCategories block regardless of confidence when flagged.
var highRiskCategories = map[string]struct{}{
	CategoryHateSpeech: {},
	CategoryThreat:     {},
	CategorySelfHarm:   {},
}

const (
	adultAge            = 18
	ageInappropriateBar = 0.5
	ruleMatchConfidence = 1.0
)

// Thresholds holds the score cutoffs used to flag classifier categories.
type Thresholds struct {
	Toxicity         float64
	Profanity        float64
	HateSpeech       float64
	BlockConfidence  float64
	ReviewConfidence float64
}

// Gate combines the deterministic rule engine with an optional external
// classifier. It never returns an error: when the classifier fails the gate
// degrades to needs_review, never to approved.
type Gate struct {
	rules      *RuleEngine
	classifier Classifier
	thresholds Thresholds
	timeout    time.Duration
	pacer      *rate.Limiter
	logger     logger.Logger
}

// GateOptions configures a Gate.
type GateOptions struct {
	// Classifier may be nil; the rule engine then decides alone.
	Classifier Classifier
	Thresholds Thresholds
	// ClassifierTimeout bounds each classifier call.
	ClassifierTimeout time.Duration
	// ClassifierRPS paces classifier calls across workers in this process.
	ClassifierRPS int
	ExtraTerms    []string
	Logger        logger.Logger
}

// NewGate creates a moderation gate.
func NewGate(opts GateOptions) *Gate {
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = 5 * time.Second
	}
	if opts.ClassifierRPS <= 0 {
		opts.ClassifierRPS = 5
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Gate{
		rules:      NewRuleEngine(opts.ExtraTerms),
		classifier: opts.Classifier,
		thresholds: opts.Thresholds,
		timeout:    opts.ClassifierTimeout,
		pacer:      rate.NewLimiter(rate.Limit(opts.ClassifierRPS), opts.ClassifierRPS),
		logger:     opts.Logger,
	}
}

// HasClassifier reports whether an external classifier is configured.
func (g *Gate) HasClassifier() bool {
	return g.classifier != nil
}

// CheckRules runs only the deterministic rule scan. matched reports whether
// the content hit a rule; the returned decision is meaningful only then.
// Used for the synchronous stage of async moderation, where the classifier
// verdict is deferred to a background worker.
func (g *Gate) CheckRules(content string) (domain.ModerationDecision, bool) {
	reasons := g.rules.Scan(content)
	if len(reasons) == 0 {
		return domain.ModerationDecision{}, false
	}
	return domain.ModerationDecision{
		Decision:   domain.DecisionBlocked,
		Reasons:    reasons,
		Confidence: ruleMatchConfidence,
	}, true
}

// Decide runs the strategy list against the content and returns a decision.
// The deterministic rule scan runs first and blocks immediately on any
// match; the classifier refines the decision for clean content.
func (g *Gate) Decide(ctx context.Context, content string, age int) domain.ModerationDecision {
	if reasons := g.rules.Scan(content); len(reasons) > 0 {
		return domain.ModerationDecision{
			Decision:   domain.DecisionBlocked,
			Reasons:    reasons,
			Confidence: ruleMatchConfidence,
		}
	}

	if g.classifier == nil {
		return domain.ModerationDecision{Decision: domain.DecisionApproved}
	}

	scores, err := g.classify(ctx, content, age)
	if err != nil {
		// Hard safety invariant: a failed classifier call never approves.
		g.logger.Warn("classifier call failed, deferring to manual review",
			logger.Error(err))
		return domain.ModerationDecision{
			Decision: domain.DecisionNeedsReview,
			Reasons:  []string{ReasonClassifierError},
		}
	}

	return g.evaluate(scores, age)
}

func (g *Gate) classify(ctx context.Context, content string, age int) (map[string]float64, error) {
	if err := g.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.classifier.Classify(callCtx, content, age)
}

// evaluate folds classifier scores into a decision using fixed thresholds.
func (g *Gate) evaluate(scores map[string]float64, age int) domain.ModerationDecision {
	var flagged []string
	var confidence float64
	highRisk := false

	flag := func(category string, score float64) {
		flagged = append(flagged, category)
		if score > confidence {
			confidence = score
		}
		if _, ok := highRiskCategories[category]; ok {
			highRisk = true
		}
	}

	if score := scores[CategoryToxicity]; score >= g.thresholds.Toxicity {
		flag(CategoryToxicity, score)
	}
	if score := scores[CategoryProfanity]; score >= g.thresholds.Profanity {
		flag(CategoryProfanity, score)
	}
	for category := range highRiskCategories {
		if score := scores[category]; score >= g.thresholds.HateSpeech {
			flag(category, score)
		}
	}
	if age > 0 && age < adultAge {
		if score := scores[CategorySexual]; score >= ageInappropriateBar {
			flag(ReasonAgeInappropriate, score)
		}
	}

	switch {
	case len(flagged) == 0:
		return domain.ModerationDecision{Decision: domain.DecisionApproved}
	case highRisk || confidence >= g.thresholds.BlockConfidence:
		return domain.ModerationDecision{
			Decision:   domain.DecisionBlocked,
			Reasons:    flagged,
			Confidence: confidence,
		}
	case confidence >= g.thresholds.ReviewConfidence:
		return domain.ModerationDecision{
			Decision:   domain.DecisionNeedsReview,
			Reasons:    flagged,
			Confidence: confidence,
		}
	default:
		return domain.ModerationDecision{
			Decision:   domain.DecisionApproved,
			Reasons:    flagged,
			Confidence: confidence,
		}
	}
}
