package chart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderToString(t *testing.T, err error, nodeRender func(b *strings.Builder) error) string {
	t.Helper()
	require.NoError(t, err)
	var b strings.Builder
	require.NoError(t, nodeRender(&b))
	return b.String()
}

func TestScatter(t *testing.T) {
	node, err := Scatter([]float64{1, 2, 3}, []float64{2, 4, 6}, Options{Title: "wt vs mpg", XLabel: "wt", YLabel: "mpg"})
	out := renderToString(t, err, func(b *strings.Builder) error { return WriteSVG(b, node) })

	assert.Contains(t, out, "<svg")
	assert.Equal(t, 3, strings.Count(out, "<circle"))
	assert.Contains(t, out, "wt vs mpg")
	assert.Contains(t, out, `viewBox="0 0 640 400"`)
}

func TestLine(t *testing.T) {
	node, err := Line([]float64{0, 1, 2}, []float64{1, 0, 1}, Options{})
	out := renderToString(t, err, func(b *strings.Builder) error { return WriteSVG(b, node) })
	assert.Contains(t, out, "<polyline")
}

func TestHistogram(t *testing.T) {
	values := []float64{1, 1.2, 1.4, 2, 2.1, 3, 3.3, 3.4, 3.5, 4}
	node, err := Histogram(values, 4, Options{Title: "mpg"})
	out := renderToString(t, err, func(b *strings.Builder) error { return WriteSVG(b, node) })
	assert.Equal(t, 4, strings.Count(out, "<rect"))

	_, err = Histogram(nil, 4, Options{})
	require.Error(t, err)
}

func TestBar(t *testing.T) {
	node, err := Bar([]string{"4", "6", "8"}, []float64{11, 7, 14}, Options{Title: "cylinders"})
	out := renderToString(t, err, func(b *strings.Builder) error { return WriteSVG(b, node) })
	assert.Equal(t, 3, strings.Count(out, "<rect"))
	assert.Contains(t, out, ">8</text>")

	_, err = Bar([]string{"a"}, []float64{1, 2}, Options{})
	require.Error(t, err)
}

func TestWriteHTML(t *testing.T) {
	scatter, err := Scatter([]float64{1, 2}, []float64{1, 2}, Options{})
	require.NoError(t, err)
	bar, err := Bar([]string{"x"}, []float64{1}, Options{})
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, WriteHTML(&b, "walkthrough", scatter, bar))
	out := b.String()
	assert.Contains(t, out, "<!doctype html>")
	assert.Contains(t, out, "walkthrough")
	assert.Equal(t, 2, strings.Count(out, "<svg"))
}
