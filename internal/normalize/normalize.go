// Package normalize maps heterogeneous feed payloads into canonical snapshots.
//
// The server's payload shape has drifted over time; each canonical field is
// resolved by trying its current name first, then the legacy names, then a
// zero default. The mapping below is the complete table:
//
//	strategies     <- adaptive_improvements, strategies
//	species        <- active_experiments, species
//	population     <- optimization_cycles_completed, population
//	avg fitness    <- performance_metrics.avg_fitness, avg_fitness, avgFitness
//	generation     <- current_generation, generation
//	species count  <- len(system_adaptations), species_count, speciesCount, len(species)
//
// Absent fields never produce an error; they resolve to the default.
package normalize

import (
	"github.com/coachpo/observatory/internal/schema"
)

// Snapshot converts a raw feed payload into a canonical snapshot.
func Snapshot(raw map[string]any) *schema.Snapshot {
	snap := new(schema.Snapshot)
	if raw == nil {
		return snap
	}

	snap.Strategies = strategies(firstSlice(raw, "adaptive_improvements", "strategies"))
	snap.Species = species(firstSlice(raw, "active_experiments", "species"))

	if n, ok := firstInt(raw, "optimization_cycles_completed", "population"); ok {
		snap.Population = n
	}
	if gen, ok := firstUint(raw, "current_generation", "generation"); ok {
		snap.Generation = gen
	}
	snap.AvgFitness = avgFitness(raw)
	snap.SpeciesCount = speciesCount(raw, snap.Species)
	return snap
}

func avgFitness(raw map[string]any) float64 {
	if metrics, ok := raw["performance_metrics"].(map[string]any); ok {
		if f, ok := toFloat(metrics["avg_fitness"]); ok {
			return clampUnit(f)
		}
	}
	if f, ok := firstFloat(raw, "avg_fitness", "avgFitness"); ok {
		return clampUnit(f)
	}
	return 0
}

func speciesCount(raw map[string]any, fallback []schema.Species) int {
	if adaptations, ok := raw["system_adaptations"].([]any); ok {
		return len(adaptations)
	}
	if n, ok := firstInt(raw, "species_count", "speciesCount"); ok {
		return n
	}
	return len(fallback)
}

func strategies(items []any) []schema.Strategy {
	out := make([]schema.Strategy, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var s schema.Strategy
		s.ID, _ = toString(entry["id"])
		if f, ok := toFloat(entry["fitness"]); ok {
			s.Fitness = clampUnit(f)
		}
		if c, ok := toInt(entry["complexity"]); ok {
			s.Complexity = c
		}
		s.Species, _ = toString(entry["species"])
		out = append(out, s)
	}
	return out
}

func species(items []any) []schema.Species {
	out := make([]schema.Species, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var sp schema.Species
		sp.Name, _ = toString(entry["name"])
		if n, ok := toInt(entry["population"]); ok {
			sp.Population = n
		}
		if f, ok := firstFloat(entry, "avg_fitness", "avgFitness"); ok {
			sp.AvgFitness = clampUnit(f)
		}
		if f, ok := firstFloat(entry, "max_fitness", "maxFitness"); ok {
			sp.MaxFitness = clampUnit(f)
		}
		if sp.MaxFitness < sp.AvgFitness {
			sp.MaxFitness = sp.AvgFitness
		}
		out = append(out, sp)
	}
	return out
}

func firstSlice(raw map[string]any, keys ...string) []any {
	for _, key := range keys {
		if items, ok := raw[key].([]any); ok {
			return items
		}
	}
	return nil
}

func firstFloat(raw map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		value, present := raw[key]
		if !present {
			continue
		}
		if f, ok := toFloat(value); ok {
			return f, true
		}
	}
	return 0, false
}

func firstInt(raw map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		value, present := raw[key]
		if !present {
			continue
		}
		if n, ok := toInt(value); ok {
			return n, true
		}
	}
	return 0, false
}

func firstUint(raw map[string]any, keys ...string) (uint64, bool) {
	for _, key := range keys {
		value, present := raw[key]
		if !present {
			continue
		}
		if n, ok := toUint(value); ok {
			return n, true
		}
	}
	return 0, false
}
