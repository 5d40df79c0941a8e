// Package beam implements the beam search that drives the fitness oracle
// toward a budget-valid, near-optimal talent allocation.
//
// The loop seeds a fully skilled allocation, strips single points from
// over-budget candidates, scores new candidates through the oracle, and keeps
// the top scoring candidates each round. Oracle calls are memoized by
// canonical talent string so no build is ever simulated twice.
package beam

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/mwhitby/talentbeam/optimizer/allocation"
	"github.com/mwhitby/talentbeam/player"
	"github.com/mwhitby/talentbeam/talents"
)

// ErrMissingLockedTree is returned when a tree that is not under optimization
// has no locked fallback string.
var ErrMissingLockedTree = errors.New("beam: locked talent tree required")

// Config holds the two search tunables.
type Config struct {
	// BeamWidth is the number of candidates retained per round.
	BeamWidth int

	// MaxExplorationsPerCandidate caps how many removal moves are evaluated
	// from any single over-budget candidate per round.
	MaxExplorationsPerCandidate int
}

// DefaultConfig mirrors the tunables this search runs with in practice.
func DefaultConfig() Config {
	return Config{BeamWidth: 10, MaxExplorationsPerCandidate: 10}
}

// Build is a fully specified build handed to the oracle: one talent string
// per tree alongside the player.
type Build struct {
	Player       player.Player
	ClassTalents allocation.StringProvider
	SpecTalents  allocation.StringProvider
	HeroTalents  allocation.StringProvider
}

// Oracle scores a build. A nil error with the score means success; an error
// means no score could be obtained for this particular build.
type Oracle interface {
	Score(ctx context.Context, build Build) (float64, error)
}

// LockedTrees supplies fixed talent strings for trees held constant during a
// search.
type LockedTrees struct {
	Class allocation.StringProvider
	Spec  allocation.StringProvider
	Hero  allocation.StringProvider
}

// TreeResult is the winning combination of tree strings.
type TreeResult struct {
	Class allocation.StringProvider
	Spec  allocation.StringProvider
	Hero  allocation.StringProvider
}

// Result is the search outcome. Best is nil when no budget-valid allocation
// was ever found; callers must check before treating DPS as a score.
type Result struct {
	Best  *allocation.Allocation
	Trees *TreeResult
	DPS   float64

	Iterations  int
	Evaluations int
}

// Update is a per-iteration progress snapshot for TUI/live consumers.
type Update struct {
	Iteration     int
	Evaluations   int
	BeamSize      int
	BestDPS       float64
	BestValid     bool
	BestTalents   string
	LastCandidate string
	LastDPS       float64
}

// ProgressFunc receives an Update after each beam iteration. It runs on the
// search goroutine and should return quickly.
type ProgressFunc func(Update)

// Optimizer runs beam searches. The rng makes move ordering reproducible; it
// must not be shared with other goroutines.
type Optimizer struct {
	oracle    Oracle
	cfg       Config
	rng       *rand.Rand
	log       *zap.SugaredLogger
	progress  ProgressFunc
	budgetFor func(player.Player) (int, error)
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithProgress registers a per-iteration progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Optimizer) { o.progress = fn }
}

// WithBudgetSource replaces the default level-based point budget lookup.
func WithBudgetSource(fn func(player.Player) (int, error)) Option {
	return func(o *Optimizer) { o.budgetFor = fn }
}

// New creates an Optimizer. Zero-valued config fields fall back to defaults.
func New(oracle Oracle, cfg Config, rng *rand.Rand, log *zap.SugaredLogger, opts ...Option) *Optimizer {
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = DefaultConfig().BeamWidth
	}
	if cfg.MaxExplorationsPerCandidate <= 0 {
		cfg.MaxExplorationsPerCandidate = DefaultConfig().MaxExplorationsPerCandidate
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	o := &Optimizer{
		oracle:    oracle,
		cfg:       cfg,
		rng:       rng,
		log:       log,
		budgetFor: func(p player.Player) (int, error) { return p.SpecTalentPoints() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type scored struct {
	alloc *allocation.Allocation
	dps   float64
}

// Search finds a near-optimal budget-valid allocation for the given spec
// tree. The class and hero trees must be locked; the spec tree is the one
// being searched. The seed evaluation is fatal on failure since the search
// has no baseline without it.
func (o *Optimizer) Search(
	ctx context.Context,
	tree *talents.Tree,
	p player.Player,
	locked LockedTrees,
	blocked allocation.BlockList,
) (Result, error) {
	budget, err := o.budgetFor(p)
	if err != nil {
		return Result{}, err
	}
	if locked.Class == nil {
		return Result{}, fmt.Errorf("%w: class", ErrMissingLockedTree)
	}
	if locked.Hero == nil {
		return Result{}, fmt.Errorf("%w: hero", ErrMissingLockedTree)
	}

	seed := allocation.Seed(tree, budget, blocked)
	for nc := range blocked {
		if node, ok := tree.Node(nc.NodeID); ok && nc.ChoiceIndex < len(node.Choices) {
			o.log.Debugw("talent blocked from seeding",
				"node", nc.NodeID, "talent", node.Choices[nc.ChoiceIndex].Name)
		}
	}

	seedDPS, err := o.oracle.Score(ctx, Build{
		Player:       p,
		ClassTalents: locked.Class,
		SpecTalents:  seed,
		HeroTalents:  locked.Hero,
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed evaluation failed: %w", err)
	}

	memo := map[string]float64{seed.TalentString(): seedDPS}
	beamSet := []*allocation.Allocation{seed}

	var best *allocation.Allocation
	bestDPS := 0.0
	iteration := 0
	evaluations := 1

	for len(beamSet) > 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		iteration++
		o.log.Infow("beam iteration", "iteration", iteration, "beam", len(beamSet))

		var candidates []scored
		var lastCandidate string
		var lastDPS float64
		hasNewCandidates := false

		for _, a := range beamSet {
			if a.TotalSpent() <= a.Budget() {
				// Valid and already scored: keep it in the pool as-is.
				dps := memo[a.TalentString()]
				candidates = append(candidates, scored{alloc: a, dps: dps})
				if dps > bestDPS {
					best, bestDPS = a, dps
				}
				continue
			}

			removals := a.CandidateRemovals(o.rng)
			if len(removals) > o.cfg.MaxExplorationsPerCandidate {
				removals = removals[:o.cfg.MaxExplorationsPerCandidate]
			}
			for _, nc := range removals {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
				next := a.RemovePoint(nc.NodeID, nc.ChoiceIndex)
				talentStr := next.TalentString()
				if _, seen := memo[talentStr]; seen {
					o.log.Debugw("skipping already evaluated build")
					continue
				}
				dps, err := o.oracle.Score(ctx, Build{
					Player:       p,
					ClassTalents: locked.Class,
					SpecTalents:  next,
					HeroTalents:  locked.Hero,
				})
				evaluations++
				if err != nil {
					// Per-candidate soft failure: drop it, keep searching.
					o.log.Warnw("oracle failed for candidate", "error", err)
					continue
				}
				memo[talentStr] = dps
				candidates = append(candidates, scored{alloc: next, dps: dps})
				hasNewCandidates = true
				lastCandidate, lastDPS = talentStr, dps
				o.log.Debugw("candidate scored",
					"dps", dps,
					"spent", next.TotalSpent(),
					"budget", next.Budget())
				if dps > bestDPS && next.TotalSpent() <= next.Budget() {
					best, bestDPS = next, dps
					o.log.Infow("new best valid build", "dps", dps)
				}
			}
		}

		if !hasNewCandidates {
			o.log.Infow("no new candidates, stopping", "iteration", iteration)
			break
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].dps != candidates[j].dps {
				return candidates[i].dps > candidates[j].dps
			}
			return candidates[i].alloc.TalentString() < candidates[j].alloc.TalentString()
		})
		if len(candidates) > o.cfg.BeamWidth {
			candidates = candidates[:o.cfg.BeamWidth]
		}
		beamSet = beamSet[:0]
		for _, c := range candidates {
			beamSet = append(beamSet, c.alloc)
		}

		if o.progress != nil {
			o.progress(Update{
				Iteration:     iteration,
				Evaluations:   evaluations,
				BeamSize:      len(beamSet),
				BestDPS:       bestDPS,
				BestValid:     best != nil,
				BestTalents:   bestTalentString(best),
				LastCandidate: lastCandidate,
				LastDPS:       lastDPS,
			})
		}
	}

	result := Result{DPS: bestDPS, Iterations: iteration, Evaluations: evaluations}
	if best != nil {
		result.Best = best
		result.Trees = &TreeResult{
			Class: locked.Class,
			Spec:  best,
			Hero:  locked.Hero,
		}
	}
	return result, nil
}

func bestTalentString(a *allocation.Allocation) string {
	if a == nil {
		return ""
	}
	return a.TalentString()
}
