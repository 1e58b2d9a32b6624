package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	mallard "github.com/mallard-db/mallard"
	"github.com/mallard-db/mallard/chart"
	"github.com/mallard-db/mallard/ml"
)

// newDemoCmd builds the demo subcommand: a narrated walkthrough over the
// embedded sample data, from ingestion through modeling and charts.
func newDemoCmd(opts *connectOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sample-data walkthrough",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, opts, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "output", ".", "Directory for generated charts")
	return cmd
}

func runDemo(cmd *cobra.Command, opts *connectOptions, outDir string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sess, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	mode := "local"
	if sess.IsRemote() {
		mode = opts.master
	}
	fmt.Fprintf(out, "Connected: session %s (%s)\n", sess.ID(), mode)
	if addr := sess.MonitorAddr(); addr != "" {
		fmt.Fprintf(out, "Monitor UI: http://%s\n", addr)
	}

	cars, err := sess.SampleData(ctx)
	if err != nil {
		return err
	}
	n, err := cars.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nLoaded %q: %d rows\n", mallard.SampleDataName, n)

	// Lazy pipeline: nothing runs until the collect.
	efficient := cars.
		Filter("mpg > 20").
		Mutate("kpl", "mpg * 0.425").
		Select("model", "cyl", "mpg", "kpl").
		Arrange("-mpg")
	fmt.Fprintf(out, "\nMost efficient cars (mpg > 20):\n")
	head, err := efficient.Head(ctx, 5)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, head)

	byCyl, err := cars.
		GroupBy("cyl").
		Agg(mallard.Count(), mallard.Mean("mpg"), mallard.Mean("hp")).
		Arrange("cyl").
		Collect(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Per-cylinder summary:")
	fmt.Fprintln(out, byCyl)

	if err := writeDemoCharts(ctx, out, outDir, cars, byCyl); err != nil {
		return err
	}

	// Train/test split, fit, and holdout error.
	parts, err := cars.RandomSplit(ctx, []float64{0.75, 0.25}, 42)
	if err != nil {
		return err
	}
	model, err := sess.FitLinearRegression(ctx, parts[0], "mpg ~ wt + hp", "mpg_model")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Linear regression mpg ~ wt + hp:")
	fmt.Fprintln(out, model.Summary())

	holdout, err := model.PredictTable(ctx, parts[1])
	if err != nil {
		return err
	}
	actual, err := holdout.Float64s("mpg")
	if err != nil {
		return err
	}
	predicted, err := holdout.Float64s(mallard.PredictionColumn)
	if err != nil {
		return err
	}
	rmse, err := ml.RMSE(actual, predicted)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Holdout RMSE over %d rows: %.2f\n", len(actual), rmse)

	fmt.Fprintln(out, "\nDisconnecting.")
	return sess.Close(ctx)
}

func writeDemoCharts(ctx context.Context, out io.Writer, outDir string, cars *mallard.Frame, byCyl *mallard.Table) error {
	scatterData, err := cars.Select("wt", "mpg").Collect(ctx)
	if err != nil {
		return err
	}
	wt, err := scatterData.Float64s("wt")
	if err != nil {
		return err
	}
	mpg, err := scatterData.Float64s("mpg")
	if err != nil {
		return err
	}

	scatter, err := chart.Scatter(wt, mpg, chart.Options{Title: "Weight vs MPG", XLabel: "wt", YLabel: "mpg"})
	if err != nil {
		return err
	}
	if err := writeSVG(filepath.Join(outDir, "wt_mpg.svg"), scatter); err != nil {
		return err
	}

	labels, err := byCyl.Strings("cyl")
	if err != nil {
		return err
	}
	counts, err := byCyl.Float64s("n")
	if err != nil {
		return err
	}
	bar, err := chart.Bar(labels, counts, chart.Options{Title: "Cars per cylinder count"})
	if err != nil {
		return err
	}
	if err := writeSVG(filepath.Join(outDir, "cylinders.svg"), bar); err != nil {
		return err
	}

	fmt.Fprintf(out, "Charts written to %s: wt_mpg.svg, cylinders.svg\n", outDir)
	return nil
}

func writeSVG(path string, node interface{ Render(io.Writer) error }) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := node.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
