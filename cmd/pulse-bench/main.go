package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/pulsegraph/pulse"
)

func main() {
	cmd := &cli.Command{
		Name:  "pulse-bench",
		Usage: "Benchmark the pulse reactive runtime",
		Commands: []*cli.Command{
			propagateCommand(),
			layersCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func propagateCommand() *cli.Command {
	return &cli.Command{
		Name:  "propagate",
		Usage: "Time write propagation through width x height derived matrices",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "iterations",
				Usage: "Writes per matrix shape",
				Value: 100,
			},
		},
		Action: runPropagate,
	}
}

type reader func() (int, error)

func sourceReader(s *pulse.Source[int]) reader {
	return func() (int, error) { return s.Value(), nil }
}

func runPropagate(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Int("iterations"))

	tbl := table.NewWriter()
	tbl.SetTitle("pulse propagate")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range []int{1, 10, 100} {
		for _, h := range []int{1, 10, 100} {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rt := pulse.New()
			var src *pulse.Source[int]
			root, err := pulse.NewRoot(rt, func() (pulse.Teardown, error) {
				src = pulse.NewSource(rt, 1)
				for i := 0; i < w; i++ {
					last := sourceReader(src)
					for j := 0; j < h; j++ {
						prev := last
						d, err := pulse.NewDerived(rt, func(int) (int, error) {
							v, err := prev()
							return v + 1, err
						})
						if err != nil {
							return nil, err
						}
						last = d.Value
					}
					leaf := last
					if _, err := pulse.NewEffect(rt, pulse.KindUser, func() (pulse.Teardown, error) {
						_, err := leaf()
						return nil, err
					}); err != nil {
						return nil, err
					}
				}
				return nil, nil
			})
			if err != nil {
				return err
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := src.Set(src.Peek() + 1); err != nil {
					return err
				}
				tach.AddTime(time.Since(start))
			}
			root.Destroy()

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{{
				fmt.Sprintf("propagate: %d * %d", w, h),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
			}})
		}
	}
	tbl.Render()
	return nil
}

type layersConfig struct {
	name       string
	width      int
	layers     int
	nSources   int
	iterations int
}

func layersCommand() *cli.Command {
	return &cli.Command{
		Name:   "layers",
		Usage:  "Measure update rates through layered dynamic graphs",
		Action: runLayers,
	}
}

func runLayers(ctx context.Context, cmd *cli.Command) error {
	cfgs := []layersConfig{
		{name: "simple component", width: 10, layers: 5, nSources: 2, iterations: 50_000},
		{name: "dynamic component", width: 10, layers: 10, nSources: 6, iterations: 15_000},
		{name: "wide dense", width: 1_000, layers: 5, nSources: 25, iterations: 300},
		{name: "deep", width: 5, layers: 500, nSources: 3, iterations: 500},
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"test", "size", "nSources", "nTimes", "time", "updates/s"})

	for _, cfg := range cfgs {
		log.Printf("running %q", cfg.name)
		elapsed, reads, err := runLayered(cfg)
		if err != nil {
			return err
		}
		rate := float64(reads) / elapsed.Seconds()
		tbl.Append([]string{
			cfg.name,
			fmt.Sprintf("%dx%d", cfg.width, cfg.layers),
			fmt.Sprintf("%d", cfg.nSources),
			humanize.Comma(int64(cfg.iterations)),
			elapsed.Round(time.Microsecond).String(),
			humanize.CommafWithDigits(rate, 0),
		})
	}
	tbl.Render()
	return nil
}

// runLayered builds width sources, then layers of deriveds each reading
// nSources nodes of the previous layer, with one user effect per leaf, and
// reports how long it takes to push iterations of round-robin writes.
func runLayered(cfg layersConfig) (time.Duration, int64, error) {
	rt := pulse.New()
	var (
		sources []*pulse.Source[int]
		reads   int64
	)
	root, err := pulse.NewRoot(rt, func() (pulse.Teardown, error) {
		prev := make([]reader, cfg.width)
		for i := 0; i < cfg.width; i++ {
			s := pulse.NewSource(rt, i)
			sources = append(sources, s)
			prev[i] = sourceReader(s)
		}
		for l := 0; l < cfg.layers; l++ {
			next := make([]reader, cfg.width)
			for i := 0; i < cfg.width; i++ {
				ins := make([]reader, 0, cfg.nSources)
				for k := 0; k < cfg.nSources; k++ {
					ins = append(ins, prev[(i+k)%cfg.width])
				}
				d, err := pulse.NewDerived(rt, func(int) (int, error) {
					sum := 0
					for _, in := range ins {
						v, err := in()
						if err != nil {
							return 0, err
						}
						sum += v
					}
					reads++
					return sum, nil
				})
				if err != nil {
					return nil, err
				}
				next[i] = d.Value
			}
			prev = next
		}
		for i := 0; i < cfg.width; i++ {
			leaf := prev[i]
			if _, err := pulse.NewEffect(rt, pulse.KindUser, func() (pulse.Teardown, error) {
				_, err := leaf()
				return nil, err
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return 0, 0, err
	}
	defer root.Destroy()

	start := time.Now()
	for i := 0; i < cfg.iterations; i++ {
		s := sources[i%len(sources)]
		if err := s.Set(s.Peek() + 1); err != nil {
			return 0, 0, err
		}
	}
	return time.Since(start), reads, nil
}
