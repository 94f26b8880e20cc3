// Package render projects telemetry history onto drawing primitives and
// terminal widgets. The projection math is display-independent; the
// dashboard binds it to termui.
package render

import (
	"fmt"
	"iter"

	"github.com/coachpo/observatory/internal/schema"
)

// GridDivisions is the number of background grid cells per axis.
const GridDivisions = 10

// Point is a projected chart coordinate. The origin is the top-left corner;
// y grows downward, matching raster surfaces.
type Point struct {
	X float64
	Y float64
}

// Line is a straight segment between two projected points.
type Line struct {
	From Point
	To   Point
}

// Caption is an axis label anchored at a projected position.
type Caption struct {
	Text string
	At   Point
}

// Frame is a complete set of drawing instructions for one chart redraw.
type Frame struct {
	Width    float64
	Height   float64
	Grid     []Line
	Polyline []Line
	Markers  []Point
	Captions []Caption
}

// BuildFrame projects the history series onto a width×height surface:
// a 10×10 grid, one polyline through all points (omitted below 2 points),
// a marker per point, and the two axis captions. Fitness maps the fixed
// [0, 1] range onto the vertical axis; it is not rescaled to the data.
// The series must be restartable; it is ranged twice, once for the
// generation span and once for the projection.
func BuildFrame(series iter.Seq[schema.HistoryPoint], width, height float64) Frame {
	frame := Frame{
		Width:  width,
		Height: height,
		Grid:   gridLines(width, height),
		Captions: []Caption{
			{Text: "generation", At: Point{X: width / 2, Y: height}},
			{Text: "avg fitness", At: Point{X: 0, Y: 0}},
		},
	}
	if series == nil {
		return frame
	}

	minGen, maxGen, count := generationRange(series)
	if count == 0 {
		return frame
	}
	span := maxGen - minGen
	if span < 1 {
		span = 1
	}

	frame.Markers = make([]Point, 0, count)
	for p := range series {
		frame.Markers = append(frame.Markers, Point{
			X: float64(p.Generation-minGen) / float64(span) * width,
			Y: height - p.AvgFitness*height,
		})
	}

	if len(frame.Markers) >= 2 {
		frame.Polyline = make([]Line, 0, len(frame.Markers)-1)
		for i := 1; i < len(frame.Markers); i++ {
			frame.Polyline = append(frame.Polyline, Line{From: frame.Markers[i-1], To: frame.Markers[i]})
		}
	}
	return frame
}

func gridLines(width, height float64) []Line {
	lines := make([]Line, 0, 2*(GridDivisions+1))
	for i := 0; i <= GridDivisions; i++ {
		x := float64(i) / GridDivisions * width
		lines = append(lines, Line{From: Point{X: x, Y: 0}, To: Point{X: x, Y: height}})
	}
	for i := 0; i <= GridDivisions; i++ {
		y := float64(i) / GridDivisions * height
		lines = append(lines, Line{From: Point{X: 0, Y: y}, To: Point{X: width, Y: y}})
	}
	return lines
}

func generationRange(series iter.Seq[schema.HistoryPoint]) (minGen, maxGen uint64, count int) {
	for p := range series {
		if count == 0 || p.Generation < minGen {
			minGen = p.Generation
		}
		if count == 0 || p.Generation > maxGen {
			maxGen = p.Generation
		}
		count++
	}
	return minGen, maxGen, count
}

// CounterStrings formats the four scalar counters shown beside the chart.
func CounterStrings(snap *schema.Snapshot) (generation, avgFitness, population, species string) {
	if snap == nil {
		return "-", "-", "-", "-"
	}
	return fmt.Sprintf("%d", snap.Generation),
		fmt.Sprintf("%.4f", snap.AvgFitness),
		fmt.Sprintf("%d", snap.Population),
		fmt.Sprintf("%d", snap.SpeciesCount)
}

// StrategyRows formats the strategy list rows, fittest first order preserved
// as delivered by the feed.
func StrategyRows(snap *schema.Snapshot) []string {
	if snap == nil || len(snap.Strategies) == 0 {
		return []string{"no strategies"}
	}
	rows := make([]string, 0, len(snap.Strategies))
	for _, s := range snap.Strategies {
		rows = append(rows, fmt.Sprintf("%-24s %.4f c%-3d %s", s.ID, s.Fitness, s.Complexity, s.Species))
	}
	return rows
}

// SpeciesRows formats the species list rows.
func SpeciesRows(snap *schema.Snapshot) []string {
	if snap == nil || len(snap.Species) == 0 {
		return []string{"no species"}
	}
	rows := make([]string, 0, len(snap.Species))
	for _, sp := range snap.Species {
		rows = append(rows, fmt.Sprintf("%-16s pop=%-4d avg=%.4f max=%.4f", sp.Name, sp.Population, sp.AvgFitness, sp.MaxFitness))
	}
	return rows
}
