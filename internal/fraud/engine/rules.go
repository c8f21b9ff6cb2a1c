package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rules holds every tunable constant of the engine. The YAML form mirrors the
// struct; missing keys keep their defaults.
type Rules struct {
	Amount     AmountRules     `yaml:"amount"`
	Velocity   VelocityRules   `yaml:"velocity"`
	Behavioral BehavioralRules `yaml:"behavioral"`
	Location   LocationRules   `yaml:"location"`
	AccountAge AccountAgeRules `yaml:"account_age"`
	Weights    Weights         `yaml:"weights"`
	Levels     Levels          `yaml:"levels"`
}

// SuspiciousScore is the fixed score at or above which a transaction is
// flagged suspicious. It is not part of the rules file.
const SuspiciousScore = 50.0

type AmountRules struct {
	HighThreshold       decimal.Decimal `yaml:"high_threshold"`
	WithdrawalThreshold decimal.Decimal `yaml:"withdrawal_threshold"`
	WithdrawalFloor     float64         `yaml:"withdrawal_floor"`
}

type VelocityRules struct {
	Window          time.Duration `yaml:"window"`
	MaxTransactions int           `yaml:"max_transactions"`
}

type BehavioralRules struct {
	NoHistoryScore        float64         `yaml:"no_history_score"`
	NewRecipientThreshold decimal.Decimal `yaml:"new_recipient_threshold"`
	NewRecipientIncrement float64         `yaml:"new_recipient_increment"`
}

type LocationRules struct {
	// SuspiciousIPs accepts single addresses and CIDR prefixes.
	SuspiciousIPs     []string `yaml:"suspicious_ips"`
	IPChangeScore     float64  `yaml:"ip_change_score"`
	DeviceChangeScore float64  `yaml:"device_change_score"`
}

type AccountAgeRules struct {
	NewAccountDays int     `yaml:"new_account_days"`
	UnknownScore   float64 `yaml:"unknown_score"`
}

type Weights struct {
	Amount     float64 `yaml:"amount"`
	Velocity   float64 `yaml:"velocity"`
	Behavioral float64 `yaml:"behavioral"`
	Location   float64 `yaml:"location"`
	AccountAge float64 `yaml:"account_age"`
}

// Sum is the total weight.
func (w Weights) Sum() float64 {
	return w.Amount + w.Velocity + w.Behavioral + w.Location + w.AccountAge
}

// Levels are the lower bounds of each risk level.
type Levels struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

func DefaultRules() Rules {
	return Rules{
		Amount: AmountRules{
			HighThreshold:       decimal.NewFromInt(50_000_000),
			WithdrawalThreshold: decimal.NewFromInt(10_000_000),
			WithdrawalFloor:     60,
		},
		Velocity: VelocityRules{
			Window:          5 * time.Minute,
			MaxTransactions: 5,
		},
		Behavioral: BehavioralRules{
			NoHistoryScore:        30,
			NewRecipientThreshold: decimal.NewFromInt(10_000_000),
			NewRecipientIncrement: 20,
		},
		Location: LocationRules{
			IPChangeScore:     30,
			DeviceChangeScore: 30,
		},
		AccountAge: AccountAgeRules{
			NewAccountDays: 7,
			UnknownScore:   30,
		},
		Weights: Weights{
			Amount:     0.25,
			Velocity:   0.30,
			Behavioral: 0.20,
			Location:   0.15,
			AccountAge: 0.10,
		},
		Levels: Levels{
			Critical: 80,
			High:     60,
			Medium:   40,
			Low:      20,
		},
	}
}

const weightTolerance = 1e-9

// Validate rejects rule sets that would break the score invariants.
func (r Rules) Validate() error {
	if math.Abs(r.Weights.Sum()-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", r.Weights.Sum())
	}
	for name, w := range map[string]float64{
		"amount": r.Weights.Amount, "velocity": r.Weights.Velocity, "behavioral": r.Weights.Behavioral,
		"location": r.Weights.Location, "account_age": r.Weights.AccountAge,
	} {
		if w < 0 {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	if !r.Amount.HighThreshold.IsPositive() {
		return fmt.Errorf("amount.high_threshold must be positive")
	}
	if r.Velocity.Window <= 0 || r.Velocity.MaxTransactions < 1 {
		return fmt.Errorf("velocity window and max_transactions must be positive")
	}
	if r.AccountAge.NewAccountDays < 1 {
		return fmt.Errorf("account_age.new_account_days must be at least 1")
	}
	l := r.Levels
	if !(l.Critical > l.High && l.High > l.Medium && l.Medium > l.Low && l.Low > 0 && l.Critical <= 100) {
		return fmt.Errorf("levels must be strictly descending within (0, 100]")
	}
	if _, err := parsePrefixes(r.Location.SuspiciousIPs); err != nil {
		return err
	}
	return nil
}

// LoadRules reads a YAML rules file over the defaults and validates the result.
// Unknown keys are refused.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("parse rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid suspicious ip prefix %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid suspicious ip %q: %w", e, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
