package main

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ryhazerus/drl"
	"github.com/ryhazerus/drl/metrics"
)

func (rt *runtime) hammerCommand() *cli.Command {
	return &cli.Command{
		Name:  "hammer",
		Usage: "increment one target from many concurrent workers",
		Flags: append(targetFlags(),
			&cli.IntFlag{Name: "workers", Value: 8, Usage: "concurrent workers"},
			&cli.IntFlag{Name: "requests", Value: 100, Usage: "increments per worker"},
			&cli.Float64Flag{Name: "rate", Usage: "increments per second per worker; 0 is unpaced"},
			&cli.StringFlag{Name: "identifier", Usage: "target identifier (default: random)"},
			&cli.BoolFlag{Name: "metrics", Usage: "print call counters when done"},
		),
		Action: rt.hammer,
	}
}

func (rt *runtime) hammer(c *cli.Context) error {
	l, err := rt.resolveLimit(c)
	if err != nil {
		return err
	}
	identifier := c.String("identifier")
	if identifier == "" {
		identifier = uuid.NewString()
	}

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return err
	}
	limiter, err := rt.limiter(drl.WithRecorder(rec))
	if err != nil {
		return err
	}
	defer limiter.Close()

	t, err := limiter.Target(l.Scope, identifier, l.Max, l.Period)
	if err != nil {
		return err
	}

	every := rate.Inf
	if r := c.Float64("rate"); r > 0 {
		every = rate.Limit(r)
	}
	workers, requests := c.Int("workers"), c.Int("requests")
	rt.logger.Info("hammering",
		zap.String("key", t.Key()), zap.Int("workers", workers), zap.Int("requests", requests))

	var accepted, rejected atomic.Int64
	start := time.Now()
	g, ctx := errgroup.WithContext(c.Context)
	for i := 0; i < workers; i++ {
		pace := rate.NewLimiter(every, 1)
		g.Go(func() error {
			for j := 0; j < requests; j++ {
				if err := pace.Wait(ctx); err != nil {
					return err
				}
				ok, err := t.Increment(ctx, 1)
				if err != nil {
					return err
				}
				if ok {
					accepted.Add(1)
				} else {
					rejected.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	used, err := t.Used(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "identifier %s\n", identifier)
	fmt.Fprintf(w, "accepted %d\n", accepted.Load())
	fmt.Fprintf(w, "rejected %d\n", rejected.Load())
	fmt.Fprintf(w, "used %d/%d\n", used, l.Max)
	fmt.Fprintf(w, "elapsed %s\n", elapsed.Round(time.Millisecond))

	if c.Bool("metrics") {
		return printCounters(c, reg)
	}
	return nil
}

// printCounters writes every counter in reg as name{label=value,...} total.
func printCounters(c *cli.Context, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}
