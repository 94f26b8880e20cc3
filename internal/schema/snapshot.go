// Package schema defines the canonical telemetry types shared across the observatory.
package schema

// Strategy is a named candidate solution with a fitness score, a structural
// complexity, and a species affiliation referenced by name.
type Strategy struct {
	ID         string  `json:"id"`
	Fitness    float64 `json:"fitness"`
	Complexity int     `json:"complexity"`
	Species    string  `json:"species"`
}

// Species aggregates population and fitness statistics for a strategy group.
// MaxFitness is never below AvgFitness.
type Species struct {
	Name       string  `json:"name"`
	Population int     `json:"population"`
	AvgFitness float64 `json:"avg_fitness"`
	MaxFitness float64 `json:"max_fitness"`
}

// Snapshot is one consistent point-in-time reading of the full telemetry
// state. Snapshots are replaced wholesale on every update and never mutated
// in place by consumers.
type Snapshot struct {
	Generation   uint64     `json:"generation"`
	AvgFitness   float64    `json:"avg_fitness"`
	Population   int        `json:"population"`
	SpeciesCount int        `json:"species_count"`
	Strategies   []Strategy `json:"strategies"`
	Species      []Species  `json:"species"`
}

// HistoryPoint is one charted observation of a snapshot.
type HistoryPoint struct {
	Generation uint64  `json:"generation"`
	AvgFitness float64 `json:"avg_fitness"`
	Timestamp  int64   `json:"timestamp"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := new(Snapshot)
	out.Generation = s.Generation
	out.AvgFitness = s.AvgFitness
	out.Population = s.Population
	out.SpeciesCount = s.SpeciesCount
	if len(s.Strategies) > 0 {
		out.Strategies = make([]Strategy, len(s.Strategies))
		copy(out.Strategies, s.Strategies)
	}
	if len(s.Species) > 0 {
		out.Species = make([]Species, len(s.Species))
		copy(out.Species, s.Species)
	}
	return out
}
