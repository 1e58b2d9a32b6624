// Package chart renders materialized results as standalone SVG: scatter,
// histogram, bar, and line charts sized for walkthrough output and the
// monitor UI.
package chart

import (
	"fmt"
	"io"
	"math"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

// Options controls chart geometry and labeling. Zero values fall back to
// the defaults noted per field.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	Width  int // default 640
	Height int // default 400
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	return o
}

// Chart margins and styling.
const (
	marginLeft   = 55.0
	marginRight  = 15.0
	marginTop    = 35.0
	marginBottom = 45.0
	pointRadius  = 3.5
	seriesColor  = "#2563eb"
	axisColor    = "#444"
)

// Scatter plots y against x as points.
func Scatter(x, y []float64, opts Options) (gomponents.Node, error) {
	if err := pairedSeries(x, y); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	p := newPlotArea(opts, minMax(x), minMax(y))

	points := make([]gomponents.Node, 0, len(x))
	for i := range x {
		px, py := p.project(x[i], y[i])
		points = append(points, el("circle",
			attr("cx", coord(px)), attr("cy", coord(py)),
			attr("r", coord(pointRadius)), attr("fill", seriesColor)))
	}
	return svgFrame(opts, p, points...), nil
}

// Line plots y against x as a connected polyline, sorted by the caller.
func Line(x, y []float64, opts Options) (gomponents.Node, error) {
	if err := pairedSeries(x, y); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	p := newPlotArea(opts, minMax(x), minMax(y))

	pathPoints := ""
	for i := range x {
		px, py := p.project(x[i], y[i])
		pathPoints += fmt.Sprintf("%s,%s ", coord(px), coord(py))
	}
	line := el("polyline",
		attr("points", pathPoints),
		attr("fill", "none"), attr("stroke", seriesColor), attr("stroke-width", "2"))
	return svgFrame(opts, p, line), nil
}

// Histogram bins values into bins equal-width buckets and draws counts.
func Histogram(values []float64, bins int, opts Options) (gomponents.Node, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values to plot")
	}
	if bins <= 0 {
		bins = 10
	}
	opts = opts.withDefaults()

	mm := minMax(values)
	lo, hi := mm[0], mm[1]
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range values {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}

	p := newPlotArea(opts, [2]float64{lo, hi}, [2]float64{0, maxOf(counts)})
	bars := make([]gomponents.Node, 0, bins)
	for b, count := range counts {
		x0, y0 := p.project(lo+float64(b)*width, count)
		x1, base := p.project(lo+float64(b+1)*width, 0)
		bars = append(bars, el("rect",
			attr("x", coord(x0)), attr("y", coord(y0)),
			attr("width", coord(x1-x0-1)), attr("height", coord(base-y0)),
			attr("fill", seriesColor)))
	}
	return svgFrame(opts, p, bars...), nil
}

// Bar draws one bar per label with the given heights.
func Bar(labels []string, heights []float64, opts Options) (gomponents.Node, error) {
	if len(labels) == 0 || len(labels) != len(heights) {
		return nil, fmt.Errorf("labels (%d) and heights (%d) must match and be non-empty", len(labels), len(heights))
	}
	opts = opts.withDefaults()

	top := maxOf(heights)
	if top <= 0 {
		top = 1
	}
	p := newPlotArea(opts, [2]float64{0, float64(len(labels))}, [2]float64{0, top})

	nodes := make([]gomponents.Node, 0, 2*len(labels))
	slot := (p.x1 - p.x0) / float64(len(labels))
	for i, h := range heights {
		_, yTop := p.project(0, h)
		_, base := p.project(0, 0)
		bx := p.x0 + float64(i)*slot + slot*0.1
		nodes = append(nodes, el("rect",
			attr("x", coord(bx)), attr("y", coord(yTop)),
			attr("width", coord(slot*0.8)), attr("height", coord(base-yTop)),
			attr("fill", seriesColor)))
		nodes = append(nodes, el("text",
			attr("x", coord(bx+slot*0.4)), attr("y", coord(base+16)),
			attr("text-anchor", "middle"), attr("font-size", "11"),
			gomponents.Text(labels[i])))
	}
	return svgFrame(opts, p, nodes...), nil
}

// WriteSVG renders a chart node as a standalone SVG document.
func WriteSVG(w io.Writer, node gomponents.Node) error {
	return node.Render(w)
}

// WriteHTML wraps one or more charts in a minimal HTML page.
func WriteHTML(w io.Writer, title string, charts ...gomponents.Node) error {
	page := html.Doctype(html.HTML(
		html.Head(html.TitleEl(gomponents.Text(title))),
		html.Body(html.H1(gomponents.Text(title)), gomponents.Group(charts)),
	))
	return page.Render(w)
}

// plotArea maps data coordinates onto the SVG pixel area.
type plotArea struct {
	x0, x1, y0, y1 float64 // pixel bounds
	dx, dy         [2]float64
}

func newPlotArea(opts Options, xRange, yRange [2]float64) plotArea {
	if xRange[1] == xRange[0] {
		xRange[1] = xRange[0] + 1
	}
	if yRange[1] == yRange[0] {
		yRange[1] = yRange[0] + 1
	}
	return plotArea{
		x0: marginLeft,
		x1: float64(opts.Width) - marginRight,
		y0: marginTop,
		y1: float64(opts.Height) - marginBottom,
		dx: xRange,
		dy: yRange,
	}
}

func (p plotArea) project(x, y float64) (px, py float64) {
	px = p.x0 + (x-p.dx[0])/(p.dx[1]-p.dx[0])*(p.x1-p.x0)
	py = p.y1 - (y-p.dy[0])/(p.dy[1]-p.dy[0])*(p.y1-p.y0)
	return px, py
}

// svgFrame wraps content with the outer svg element, axes, title, and
// labels.
func svgFrame(opts Options, p plotArea, content ...gomponents.Node) gomponents.Node {
	children := []gomponents.Node{
		attr("xmlns", "http://www.w3.org/2000/svg"),
		attr("width", fmt.Sprintf("%d", opts.Width)),
		attr("height", fmt.Sprintf("%d", opts.Height)),
		attr("viewBox", fmt.Sprintf("0 0 %d %d", opts.Width, opts.Height)),
		// Axes.
		el("line", attr("x1", coord(p.x0)), attr("y1", coord(p.y1)),
			attr("x2", coord(p.x1)), attr("y2", coord(p.y1)),
			attr("stroke", axisColor)),
		el("line", attr("x1", coord(p.x0)), attr("y1", coord(p.y0)),
			attr("x2", coord(p.x0)), attr("y2", coord(p.y1)),
			attr("stroke", axisColor)),
	}
	if opts.Title != "" {
		children = append(children, el("text",
			attr("x", coord((p.x0+p.x1)/2)), attr("y", "20"),
			attr("text-anchor", "middle"), attr("font-size", "15"),
			gomponents.Text(opts.Title)))
	}
	if opts.XLabel != "" {
		children = append(children, el("text",
			attr("x", coord((p.x0+p.x1)/2)), attr("y", coord(p.y1+35)),
			attr("text-anchor", "middle"), attr("font-size", "12"),
			gomponents.Text(opts.XLabel)))
	}
	if opts.YLabel != "" {
		children = append(children, el("text",
			attr("x", "15"), attr("y", coord((p.y0+p.y1)/2)),
			attr("text-anchor", "middle"), attr("font-size", "12"),
			attr("transform", fmt.Sprintf("rotate(-90 15 %s)", coord((p.y0+p.y1)/2))),
			gomponents.Text(opts.YLabel)))
	}
	children = append(children, content...)
	return el("svg", children...)
}

func el(name string, children ...gomponents.Node) gomponents.Node {
	return gomponents.El(name, children...)
}

func attr(name, value string) gomponents.Node {
	return gomponents.Attr(name, value)
}

func coord(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func pairedSeries(x, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("x (%d) and y (%d) must match and be non-empty", len(x), len(y))
	}
	return nil
}

func minMax(v []float64) [2]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return [2]float64{lo, hi}
}

func maxOf(v []float64) float64 {
	out := math.Inf(-1)
	for _, x := range v {
		if x > out {
			out = x
		}
	}
	return out
}
