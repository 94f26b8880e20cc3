// Package sim synthesizes plausible telemetry when no live feed is available.
package sim

import (
	"math/rand"

	"github.com/coachpo/observatory/internal/schema"
)

const (
	// Per-tick fitness perturbation is drawn from U(-jitter, +jitter).
	jitter = 0.005
	// Perturbed fitness stays inside [fitnessFloor, fitnessCeil].
	fitnessFloor = 0.1
	fitnessCeil  = 1.0
)

// Generator produces seeded and incrementally advanced synthetic snapshots.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator backed by the given random source.
// A nil source falls back to a fixed-seed generator, which keeps repeated
// local runs comparable.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Generator{rng: rng}
}

// Seed returns the initial synthetic snapshot: a fixed catalogue of named
// strategies and species with illustrative fitness and complexity values.
func (g *Generator) Seed() *schema.Snapshot {
	strategies := []schema.Strategy{
		{ID: "gradient-refiner", Fitness: 0.62, Complexity: 4, Species: "refiners"},
		{ID: "mutation-sampler", Fitness: 0.48, Complexity: 2, Species: "explorers"},
		{ID: "crossover-blender", Fitness: 0.55, Complexity: 3, Species: "explorers"},
		{ID: "pruning-minimalist", Fitness: 0.41, Complexity: 1, Species: "minimalists"},
		{ID: "ensemble-stacker", Fitness: 0.70, Complexity: 6, Species: "refiners"},
		{ID: "annealing-wanderer", Fitness: 0.35, Complexity: 2, Species: "minimalists"},
	}
	snap := &schema.Snapshot{
		Generation: 1,
		Population: len(strategies) * 8,
		Strategies: strategies,
	}
	snap.Species = aggregateSpecies(strategies)
	snap.SpeciesCount = len(snap.Species)
	snap.AvgFitness = meanFitness(strategies)
	return snap
}

// Tick advances the previous snapshot by one generation, applying a small
// bounded random perturbation to every strategy's fitness. The caller is
// responsible for scheduling; Tick itself holds no timer and must not run
// while a live feed is delivering updates.
func (g *Generator) Tick(prev *schema.Snapshot) *schema.Snapshot {
	if prev == nil {
		return g.Seed()
	}
	next := prev.Clone()
	next.Generation = prev.Generation + 1
	for i := range next.Strategies {
		delta := (g.rng.Float64()*2 - 1) * jitter
		next.Strategies[i].Fitness = clamp(next.Strategies[i].Fitness + delta)
	}
	next.AvgFitness = meanFitness(next.Strategies)
	next.Species = aggregateSpecies(next.Strategies)
	next.SpeciesCount = len(next.Species)
	return next
}

func clamp(f float64) float64 {
	if f < fitnessFloor {
		return fitnessFloor
	}
	if f > fitnessCeil {
		return fitnessCeil
	}
	return f
}

func meanFitness(strategies []schema.Strategy) float64 {
	if len(strategies) == 0 {
		return 0
	}
	var sum float64
	for _, s := range strategies {
		sum += s.Fitness
	}
	return sum / float64(len(strategies))
}

// aggregateSpecies recomputes per-species statistics from the strategy list,
// preserving first-appearance order.
func aggregateSpecies(strategies []schema.Strategy) []schema.Species {
	order := make([]string, 0, 4)
	stats := make(map[string]*schema.Species, 4)
	counts := make(map[string]int, 4)
	for _, s := range strategies {
		sp, ok := stats[s.Species]
		if !ok {
			sp = &schema.Species{Name: s.Species}
			stats[s.Species] = sp
			order = append(order, s.Species)
		}
		sp.Population++
		sp.AvgFitness += s.Fitness
		if s.Fitness > sp.MaxFitness {
			sp.MaxFitness = s.Fitness
		}
		counts[s.Species]++
	}
	out := make([]schema.Species, 0, len(order))
	for _, name := range order {
		sp := stats[name]
		sp.AvgFitness /= float64(counts[name])
		out = append(out, *sp)
	}
	return out
}
