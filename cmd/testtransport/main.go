// Command testtransport inspects test transport DSNs: it prints the flags a
// DSN and options resolve to, and whether a DSN is handled by the test
// transport factory.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/urfave/cli/v2"

	testtransport "github.com/nrfta/go-testtransport"
	"github.com/nrfta/go-testtransport/bus"
	"github.com/nrfta/go-testtransport/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "testtransport",
		Version:   Version,
		Usage:     "Inspect in-memory test transport configuration",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "Print the flags resolved from a DSN and options",
				ArgsUsage: "<dsn>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "option",
						Aliases: []string{"o"},
						Usage:   "Option override as key=value, repeatable",
					},
				},
				Action: runResolve,
			},
			{
				Name:      "supports",
				Usage:     "Exit with an error unless the DSN uses the test scheme",
				ArgsUsage: "<dsn>",
				Action:    runSupports,
			},
			{
				Name:      "check",
				Usage:     "Validate a transports configuration file",
				ArgsUsage: "<path>",
				Action:    runCheck,
			},
		},
	}
}

func newLogger(c *cli.Context) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if c.Bool("verbose") {
		return level.NewFilter(logger, level.AllowDebug())
	}
	return level.NewFilter(logger, level.AllowWarn())
}

func runResolve(c *cli.Context) error {
	dsn := c.Args().First()
	if dsn == "" {
		return cli.Exit("missing <dsn> argument", 2)
	}

	options, err := parseOptions(c.StringSlice("option"))
	if err != nil {
		return err
	}

	level.Debug(newLogger(c)).Log("msg", "resolving", "dsn", dsn, "options", fmt.Sprint(options))

	opts, err := testtransport.ResolveOptions(dsn, options)
	if err != nil {
		return err
	}

	printOptions(c.App.Writer, opts)
	return nil
}

func runSupports(c *cli.Context) error {
	dsn := c.Args().First()
	if dsn == "" {
		return cli.Exit("missing <dsn> argument", 2)
	}

	factory := testtransport.NewFactory(nil, nil, nil, testtransport.WithLogger(newLogger(c)))
	if !factory.Supports(dsn, nil) {
		return cli.Exit(fmt.Sprintf("%s is not supported", dsn), 1)
	}

	fmt.Fprintf(c.App.Writer, "%s is supported\n", dsn)
	return nil
}

func runCheck(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing <path> argument", 2)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := newLogger(c)
	factory := testtransport.NewFactory(
		bus.New(bus.AllowNoHandlers(), bus.WithLogger(logger)),
		nil,
		nil,
		testtransport.WithLogger(logger),
	)
	transports, err := cfg.CreateTransports(factory, nil)
	if err != nil {
		return err
	}

	for _, t := range transports {
		fmt.Fprintf(c.App.Writer, "[%s]\n", t.Name())
		printOptions(c.App.Writer, t.Options())
	}
	return nil
}

func parseOptions(raw []string) (map[string]any, error) {
	res := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("option %q must be key=value", kv)
		}
		res[k] = v
	}

	return res, nil
}

func printOptions(w io.Writer, opts testtransport.Options) {
	m := opts.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "%s=%t\n", k, m[k])
	}
}
