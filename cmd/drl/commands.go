package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ryhazerus/drl"
	"github.com/ryhazerus/drl/internal/config"
	"github.com/ryhazerus/drl/store"
)

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "limit", Aliases: []string{"l"}, Usage: "named limit from the config file"},
		&cli.StringFlag{Name: "scope", Usage: "limit scope; overrides --limit"},
		&cli.Int64Flag{Name: "max", Usage: "quota ceiling; overrides --limit"},
		&cli.DurationFlag{Name: "period", Usage: "decay period; overrides --limit"},
	}
}

func (rt *runtime) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "increment",
			Usage:     "record usage if it fits and print whether it did",
			ArgsUsage: "IDENTIFIER [AMOUNT]",
			Flags:     targetFlags(),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, n int64) error {
				ok, err := t.Increment(c.Context, n)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, ok)
				return nil
			}),
		},
		{
			Name:      "consume",
			Usage:     "record usage or fail when it does not fit",
			ArgsUsage: "IDENTIFIER [AMOUNT]",
			Flags: append(targetFlags(), &cli.BoolFlag{
				Name:  "wait",
				Usage: "wait for usage to decay instead of failing",
			}),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, n int64) error {
				for {
					err := t.Consume(c.Context, n)
					var exceeded *drl.ExceededError
					if !c.Bool("wait") || !errors.As(err, &exceeded) {
						return err
					}
					rt.logger.Info("waiting for quota",
						zap.String("identifier", t.Identifier()), zap.Duration("retry_after", exceeded.RetryAfter))
					if err := exceeded.Wait(c.Context); err != nil {
						return err
					}
				}
			}),
		},
		{
			Name:      "exceeded",
			Usage:     "print whether AMOUNT more would exceed the quota",
			ArgsUsage: "IDENTIFIER [AMOUNT]",
			Flags:     targetFlags(),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, n int64) error {
				exceeded, err := t.Exceeded(c.Context, n)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, exceeded)
				return nil
			}),
		},
		{
			Name:      "used",
			Usage:     "print the current decayed usage",
			ArgsUsage: "IDENTIFIER",
			Flags:     targetFlags(),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, _ int64) error {
				used, err := t.Used(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, used)
				return nil
			}),
		},
		{
			Name:      "reset",
			Usage:     "clear usage",
			ArgsUsage: "IDENTIFIER",
			Flags:     targetFlags(),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, _ int64) error {
				return t.Reset(c.Context)
			}),
		},
		{
			Name:      "decrement",
			Usage:     "give back usage, flooring at zero",
			ArgsUsage: "IDENTIFIER [AMOUNT]",
			Flags:     targetFlags(),
			Action: rt.withTarget(func(c *cli.Context, t *drl.Target, n int64) error {
				return t.Decrement(c.Context, n)
			}),
		},
		{
			Name:   "sweep",
			Usage:  "delete fully decayed counters from a SQLite store",
			Action: rt.sweep,
		},
		rt.hammerCommand(),
	}
}

// resolveLimit merges a named config limit with explicit flags.
func (rt *runtime) resolveLimit(c *cli.Context) (config.Limit, error) {
	var l config.Limit
	if name := c.String("limit"); name != "" {
		var ok bool
		if l, ok = rt.cfg.Limit(name); !ok {
			return l, fmt.Errorf("no limit named %q", name)
		}
	}
	if c.IsSet("scope") {
		l.Scope = c.String("scope")
	}
	if c.IsSet("max") {
		l.Max = c.Int64("max")
	}
	if c.IsSet("period") {
		l.Period = c.Duration("period")
	}
	return l, nil
}

// withTarget opens a limiter, builds the target named by the flags and the
// first argument, and parses the optional amount argument (default 1).
func (rt *runtime) withTarget(fn func(c *cli.Context, t *drl.Target, n int64) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return errors.New("missing IDENTIFIER")
		}
		n := int64(1)
		if c.NArg() > 1 {
			var err error
			if n, err = drl.ParseAmount(c.Args().Get(1)); err != nil {
				return err
			}
		}

		l, err := rt.resolveLimit(c)
		if err != nil {
			return err
		}
		limiter, err := rt.limiter()
		if err != nil {
			return err
		}
		defer limiter.Close()

		t, err := limiter.Target(l.Scope, c.Args().First(), l.Max, l.Period)
		if err != nil {
			return err
		}
		return fn(c, t, n)
	}
}

func (rt *runtime) sweep(c *cli.Context) error {
	s, err := rt.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	sqlite, ok := s.(*store.SQLiteStore)
	if !ok {
		return fmt.Errorf("sweep needs the sqlite store, not %s", rt.cfg.Store.Driver)
	}
	n, err := sqlite.Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "swept %d\n", n)
	return nil
}
