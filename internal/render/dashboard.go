package render

import (
	"fmt"
	"image"
	"iter"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/drawille"
	"github.com/gizak/termui/v3/widgets"

	"github.com/coachpo/observatory/internal/schema"
)

// Braille cells pack 2×4 dots; canvas coordinates are in dot space.
const (
	dotsPerCellX = 2
	dotsPerCellY = 4
)

// Dashboard binds the projected chart and the auxiliary widgets to termui.
// Every update replaces widget contents wholesale; there is no diffing.
type Dashboard struct {
	chart        *ui.Canvas
	strategyList *widgets.List
	speciesList  *widgets.List
	counters     *widgets.Paragraph
	status       *widgets.Paragraph

	width  int
	height int
}

// NewDashboard constructs the widget tree sized for width×height terminal
// cells.
func NewDashboard(width, height int) *Dashboard {
	d := &Dashboard{
		chart:        ui.NewCanvas(),
		strategyList: widgets.NewList(),
		speciesList:  widgets.NewList(),
		counters:     widgets.NewParagraph(),
		status:       widgets.NewParagraph(),
	}
	d.chart.Title = "Avg Fitness by Generation"
	d.strategyList.Title = "Strategies"
	d.strategyList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.speciesList.Title = "Species"
	d.speciesList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.counters.Title = "Telemetry"
	d.status.Title = "Connection"
	d.Resize(width, height)
	return d
}

// Resize reassigns every widget rectangle from the new terminal dimensions.
// The next Update repaints all content, so clearing is acceptable here.
func (d *Dashboard) Resize(width, height int) {
	d.width = width
	d.height = height
	chartW := width * 2 / 3
	listH := (height - 3) / 2
	d.chart.SetRect(0, 0, chartW, height-3)
	d.strategyList.SetRect(chartW, 0, width, listH)
	d.speciesList.SetRect(chartW, listH, width, height-3)
	d.counters.SetRect(0, height-3, chartW, height)
	d.status.SetRect(chartW, height-3, width, height)
}

// Update repaints every widget from the current snapshot and history series,
// then renders the frame.
func (d *Dashboard) Update(snap *schema.Snapshot, series iter.Seq[schema.HistoryPoint], connState string) {
	d.drawChart(series)

	generation, avgFitness, population, species := CounterStrings(snap)
	d.counters.Text = fmt.Sprintf("generation %s  avg fitness %s  population %s  species %s",
		generation, avgFitness, population, species)
	d.strategyList.Rows = StrategyRows(snap)
	d.speciesList.Rows = SpeciesRows(snap)
	d.status.Text = connState

	ui.Render(d.chart, d.strategyList, d.speciesList, d.counters, d.status)
}

// drawChart rasterises the projected frame onto the braille canvas.
func (d *Dashboard) drawChart(series iter.Seq[schema.HistoryPoint]) {
	d.chart.Canvas = *drawille.NewCanvas()
	inner := d.chart.Inner
	if inner.Dx() <= 0 || inner.Dy() <= 0 {
		return
	}
	width := float64(inner.Dx()*dotsPerCellX - 1)
	height := float64(inner.Dy()*dotsPerCellY - 1)
	frame := BuildFrame(series, width, height)

	origin := image.Pt(inner.Min.X*dotsPerCellX, inner.Min.Y*dotsPerCellY)
	for _, line := range frame.Grid {
		d.chart.SetLine(dot(origin, line.From), dot(origin, line.To), ui.ColorBlue)
	}
	for _, line := range frame.Polyline {
		d.chart.SetLine(dot(origin, line.From), dot(origin, line.To), ui.ColorGreen)
	}
	for _, marker := range frame.Markers {
		d.chart.SetPoint(dot(origin, marker), ui.ColorWhite)
	}
	captions := make([]string, 0, len(frame.Captions))
	for _, c := range frame.Captions {
		captions = append(captions, c.Text)
	}
	if len(captions) == 2 {
		d.chart.Title = fmt.Sprintf("Avg Fitness by Generation (%s / %s)", captions[1], captions[0])
	}
}

func dot(origin image.Point, p Point) image.Point {
	return image.Pt(origin.X+int(p.X), origin.Y+int(p.Y))
}
