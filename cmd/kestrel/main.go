// Command kestrel is the CLI front-end for SPF analysis, flattening and
// optimization.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/synqronlabs/kestrel"
	"github.com/synqronlabs/kestrel/advisor"
	"github.com/synqronlabs/kestrel/dns"
	"github.com/synqronlabs/kestrel/flatten"
	"github.com/synqronlabs/kestrel/history"
	"github.com/synqronlabs/kestrel/spf"
)

var (
	good = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

func main() {
	app := &cli.App{
		Name:  "kestrel",
		Usage: "analyze, budget and flatten SPF records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.StringSliceFlag{
				Name:  "nameserver",
				Usage: "DNS server to query (host:port), repeatable",
			},
			&cli.BoolFlag{
				Name:  "doh",
				Usage: "resolve over DNS-over-HTTPS instead of port 53",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "wall-clock budget per operation",
				Value: flatten.DefaultTimeout,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			flattenCommand(),
			optimizeCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Parse a record and report its lookup budget",
		ArgsUsage: "<domain or raw record>",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return fmt.Errorf("need a domain or a raw record")
			}
			arg := strings.Join(ctx.Args().Slice(), " ")

			a, err := newAnalyzer(ctx)
			if err != nil {
				return err
			}

			var analysis *kestrel.Analysis
			if strings.HasPrefix(arg, "v=spf1") {
				analysis = a.Analyze(arg)
			} else {
				analysis, err = a.AnalyzeDomain(ctx.Context, arg)
				if err != nil {
					return err
				}
			}

			printAnalysis(analysis)
			return nil
		},
	}
}

func flattenCommand() *cli.Command {
	return &cli.Command{
		Name:      "flatten",
		Aliases:   []string{"f"},
		Usage:     "Collapse include chains into literal IP networks",
		ArgsUsage: "<domain>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-recursive",
				Usage: "list nested includes without resolving them",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "include recursion limit",
				Value: flatten.DefaultMaxDepth,
			},
			&cli.StringFlag{
				Name:  "all",
				Usage: "terminal all directive for the generated record",
				Value: "~all",
			},
			&cli.BoolFlag{
				Name:  "split",
				Usage: "split records over 255 chars into chained includes",
			},
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "record before/after snapshots in this history database",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return fmt.Errorf("need at least one domain")
			}
			domains := ctx.Args().Slice()

			a, err := newAnalyzer(ctx)
			if err != nil {
				return err
			}
			a.MaxDepth = ctx.Int("max-depth")

			res := a.Flatten(ctx.Context, !ctx.Bool("no-recursive"), domains...)
			for _, domain := range domains {
				printDomain(domain, res.Domains[domain], ctx.String("all"), ctx.Bool("split"))
			}
			for _, e := range res.Errors {
				fmt.Println(bad(e))
			}

			if path := ctx.String("snapshot"); path != "" {
				return snapshotResults(ctx, a, path, domains, res)
			}
			return nil
		},
	}
}

func optimizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "optimize",
		Aliases:   []string{"o"},
		Usage:     "Rank includes worth flattening",
		ArgsUsage: "<domain>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "volume",
				Usage: "percentage of mail volume affected, for impact grading",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return fmt.Errorf("need exactly one domain")
			}

			a, err := newAnalyzer(ctx)
			if err != nil {
				return err
			}

			analysis, suggestions, err := a.Optimize(ctx.Context, ctx.Args().First())
			if err != nil {
				return err
			}

			printAnalysis(analysis)
			if len(suggestions) == 0 {
				fmt.Println(dim("no flattening opportunities found"))
				return nil
			}

			impact := advisor.GradeImpact(ctx.Float64("volume"))
			fmt.Printf("\nsuggestions (impact %s):\n", string(impact))
			for _, s := range suggestions {
				fmt.Printf("  %s %s saves %d lookups\n",
					good(s.Mechanism), dim("("+s.Provider+")"), s.EstimatedSavings)
				fmt.Printf("    %s\n", s.Implementation)
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect stored flattening snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path to the history database",
				Required: true,
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List snapshots, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "domain", Usage: "filter by domain"},
				},
				Action: func(ctx *cli.Context) error {
					store, err := history.Open(ctx.String("db"))
					if err != nil {
						return err
					}
					defer store.Close()

					snaps, err := store.List(ctx.String("domain"))
					if err != nil {
						return err
					}
					for _, s := range snaps {
						fmt.Printf("%s  %s  %s  %d -> %d lookups\n",
							s.ID, s.CreatedAt.Format(time.RFC3339), s.Domain,
							s.LookupsBefore, s.LookupsAfter)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show one snapshot's before/after records",
				ArgsUsage: "<id>",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return fmt.Errorf("need a snapshot ID")
					}
					store, err := history.Open(ctx.String("db"))
					if err != nil {
						return err
					}
					defer store.Close()

					s, err := store.Get(ctx.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("%s  %s  (%d IPs)\n", s.Domain,
						s.CreatedAt.Format(time.RFC3339), s.TotalIPs)
					fmt.Printf("before: %s\n", s.Before)
					fmt.Printf("after:  %s\n", s.After)
					return nil
				},
			},
		},
	}
}

// newAnalyzer builds an Analyzer from the global flags and optional
// config file.
func newAnalyzer(ctx *cli.Context) (*kestrel.Analyzer, error) {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	nameservers := ctx.StringSlice("nameserver")
	if len(nameservers) == 0 {
		nameservers = cfg.Nameservers
	}

	var resolver dns.Resolver
	if ctx.Bool("doh") || cfg.DoH {
		resolver = dns.NewDoHResolver()
	} else {
		resolver = dns.NewResolver(dns.ResolverConfig{
			Nameservers: nameservers,
		})
	}
	if cfg.CacheTTL > 0 {
		resolver = dns.NewCachedResolver(resolver, cfg.CacheTTL)
	}

	a := kestrel.NewAnalyzer(resolver)
	a.Timeout = ctx.Duration("timeout")
	a.MaxDepth = cfg.MaxDepth
	if ctx.Bool("verbose") {
		a.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return a, nil
}

func printAnalysis(a *kestrel.Analysis) {
	if a.Domain != "" {
		fmt.Printf("%s\n", a.Domain)
	}
	fmt.Printf("record: %s\n", a.Record.Raw)

	status := string(a.Breakdown.Status)
	switch a.Breakdown.Status {
	case spf.ComplianceOK:
		status = good(status)
	case spf.ComplianceWarning:
		status = warn(status)
	case spf.ComplianceFail:
		status = bad(status)
	}
	fmt.Printf("lookups: %d/%d (%s)\n", a.Breakdown.Total, spf.LookupLimit, status)
	fmt.Printf("breakdown: include=%d a=%d mx=%d ptr=%d exists=%d redirect=%d\n",
		a.Breakdown.Include, a.Breakdown.A, a.Breakdown.MX,
		a.Breakdown.PTR, a.Breakdown.Exists, a.Breakdown.Redirect)

	for _, w := range a.Record.Warnings {
		fmt.Println(warn("warning: " + w))
	}
	for _, e := range a.Record.Errors {
		fmt.Println(bad("error: " + e.Error()))
	}
}

func printDomain(domain string, dr *flatten.DomainResult, terminal string, split bool) {
	if dr == nil {
		fmt.Printf("%s: %s\n", domain, bad("unresolved"))
		return
	}

	state := good("safe to apply")
	if !dr.Resolved() {
		state = warn("apply with caveats")
	}
	fmt.Printf("%s (%d IPs, %s)\n", domain, len(dr.IPs), state)

	record := dr.FlatRecord(terminal)
	if split {
		for name, value := range flatten.SplitChained(record, domain) {
			fmt.Printf("  %s TXT %q\n", name, value)
		}
	} else {
		fmt.Printf("  %s\n", record)
	}

	for _, e := range dr.Errors {
		fmt.Printf("  %s\n", bad(e))
	}
}

// snapshotResults stores one before/after snapshot per flattened domain.
func snapshotResults(ctx *cli.Context, a *kestrel.Analyzer, path string, domains []string, res *flatten.Result) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, domain := range domains {
		dr := res.Domains[domain]
		if dr == nil {
			continue
		}

		before, err := a.LookupRecord(ctx.Context, domain)
		if err != nil {
			fmt.Println(warn(fmt.Sprintf("%s: snapshot skipped: %v", domain, err)))
			continue
		}
		after := dr.FlatRecord(ctx.String("all"))

		id, err := store.Put(&history.Snapshot{
			Domain:        domain,
			Before:        before,
			After:         after,
			LookupsBefore: spf.Parse(before).TotalLookups,
			LookupsAfter:  spf.Parse(after).TotalLookups,
			TotalIPs:      len(dr.IPs),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s snapshot %s\n", domain, dim(id))
	}
	return nil
}
