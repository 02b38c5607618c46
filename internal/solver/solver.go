// Package solver defines the automated task solvers the harness evaluates.
// A solver fills one form field at a time, acting through the browser; it
// never reads the page itself, only the typed record the driver extracted.
package solver

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"formeval/internal/field"
	"formeval/internal/scoring"
)

// Actions is the page surface a solver acts through. *browser.Driver
// implements it.
type Actions interface {
	SetValue(ctx context.Context, name, value string) error
	Check(ctx context.Context, name, value string) error
}

// Solver fills one field given its record and (for the oracle) the gold
// references for that field.
type Solver interface {
	Name() string
	Solve(ctx context.Context, rec field.Record, references []string) error
}

// New constructs a solver by name. seed makes the random baseline
// reproducible.
func New(name string, acts Actions, seed int64) (Solver, error) {
	switch name {
	case "oracle":
		return &Oracle{acts: acts}, nil
	case "random":
		return &Random{acts: acts, rng: rand.New(rand.NewSource(seed))}, nil
	default:
		return nil, fmt.Errorf("solver %q not implemented", name)
	}
}

// Oracle answers every field with its gold reference. An oracle run
// validates the whole pipeline: it should score 1.0 everywhere.
type Oracle struct {
	acts Actions
}

func (o *Oracle) Name() string { return "oracle" }

func (o *Oracle) Solve(ctx context.Context, rec field.Record, references []string) error {
	if len(references) == 0 {
		return nil // empty gold answer: the correct move is to do nothing
	}

	switch rec.Kind {
	case field.KindRadio:
		answer := scoring.MajorityVote(references)
		if answer == "" {
			return nil
		}
		return o.acts.Check(ctx, rec.Name, answer)
	case field.KindCheckbox:
		answer := firstNonEmpty(references)
		if answer == "" {
			return nil
		}
		for _, opt := range strings.Split(answer, "|") {
			if err := o.acts.Check(ctx, rec.Name, opt); err != nil {
				return err
			}
		}
		return nil
	default:
		answer := firstNonEmpty(references)
		if answer == "" {
			return nil
		}
		return o.acts.SetValue(ctx, rec.Name, answer)
	}
}

func firstNonEmpty(refs []string) string {
	for _, r := range refs {
		if r != "" {
			return r
		}
	}
	return ""
}

// Random is the floor baseline: uniform choice among a choice field's
// options, nothing for free-form fields.
type Random struct {
	acts Actions
	rng  *rand.Rand
}

func (r *Random) Name() string { return "random" }

func (r *Random) Solve(ctx context.Context, rec field.Record, _ []string) error {
	if len(rec.Options) == 0 {
		return nil
	}

	switch rec.Kind {
	case field.KindCheckbox:
		// Each option is independently checked with probability 1/2.
		for _, opt := range rec.Options {
			if r.rng.Intn(2) == 1 {
				if err := r.acts.Check(ctx, rec.Name, opt); err != nil {
					return err
				}
			}
		}
		return nil
	case field.KindRadio:
		return r.acts.Check(ctx, rec.Name, rec.Options[r.rng.Intn(len(rec.Options))])
	case field.KindSelect:
		return r.acts.SetValue(ctx, rec.Name, rec.Options[r.rng.Intn(len(rec.Options))])
	default:
		return nil
	}
}
