// Package engine scores a transaction against the user's history.
//
// The engine is pure: Score depends only on its arguments and the rules it was
// built with, so the same input always yields the same decision.
package engine

import (
	"fmt"
	"math"
	"net/netip"
	"time"

	"identrisk/internal/fraud/models"
)

// Engine is safe for concurrent use.
type Engine struct {
	rules      Rules
	suspicious []netip.Prefix
}

// New validates rules and builds an engine.
func New(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	prefixes, err := parsePrefixes(rules.Location.SuspiciousIPs)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: rules, suspicious: prefixes}, nil
}

// Default returns an engine with the built-in rules.
func Default() *Engine {
	e, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return e
}

// Rules returns a copy of the active rules.
func (e *Engine) Rules() Rules { return e.rules }

// Score computes the five factors, aggregates them and classifies the result.
// history may be nil.
func (e *Engine) Score(txn *models.Transaction, history *models.UserHistory, now time.Time) models.Decision {
	factors := map[models.Factor]float64{
		models.FactorAmount:     clamp(e.amountScore(txn)),
		models.FactorVelocity:   clamp(e.velocityScore(history, now)),
		models.FactorBehavioral: clamp(e.behavioralScore(txn, history)),
		models.FactorLocation:   clamp(e.locationScore(txn, history)),
		models.FactorAccountAge: clamp(e.accountAgeScore(history, now)),
	}

	w := e.rules.Weights
	total := factors[models.FactorAmount]*w.Amount +
		factors[models.FactorVelocity]*w.Velocity +
		factors[models.FactorBehavioral]*w.Behavioral +
		factors[models.FactorLocation]*w.Location +
		factors[models.FactorAccountAge]*w.AccountAge
	score := round2(clamp(total))

	level := e.classify(score)
	return models.Decision{
		RiskScore:         score,
		RiskLevel:         level,
		RiskFactors:       factors,
		IsSuspicious:      score >= SuspiciousScore,
		RecommendedAction: actionFor(level),
		IsBlocked:         level == models.LevelHigh || level == models.LevelCritical,
		RequiresReview:    level == models.LevelMedium || level == models.LevelHigh,
		RuleTriggers:      triggers(factors),
	}
}

func (e *Engine) classify(score float64) models.RiskLevel {
	l := e.rules.Levels
	switch {
	case score >= l.Critical:
		return models.LevelCritical
	case score >= l.High:
		return models.LevelHigh
	case score >= l.Medium:
		return models.LevelMedium
	case score >= l.Low:
		return models.LevelLow
	default:
		return models.LevelMinimal
	}
}

func actionFor(level models.RiskLevel) models.Action {
	switch level {
	case models.LevelCritical:
		return models.ActionBlock
	case models.LevelHigh:
		return models.ActionBlockAndReview
	case models.LevelMedium:
		return models.ActionReview
	case models.LevelLow:
		return models.ActionMonitor
	default:
		return models.ActionApprove
	}
}

var factorLabels = map[models.Factor]string{
	models.FactorAmount:     "transaction amount",
	models.FactorVelocity:   "transaction velocity",
	models.FactorBehavioral: "behavioral deviation",
	models.FactorLocation:   "location or device change",
	models.FactorAccountAge: "new account risk",
}

const (
	highTrigger     = 50
	moderateTrigger = 20
)

func triggers(factors map[models.Factor]float64) []string {
	out := []string{}
	for _, f := range models.Factors {
		score := factors[f]
		switch {
		case score >= highTrigger:
			out = append(out, fmt.Sprintf("High %s (%.0f)", factorLabels[f], score))
		case score >= moderateTrigger:
			out = append(out, fmt.Sprintf("Moderate %s (%.0f)", factorLabels[f], score))
		}
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
