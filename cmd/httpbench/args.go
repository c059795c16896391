package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/edgecomet/httpbench/internal/common/configtypes"
)

const usageLine = "Usage: httpbench [flags] <host> [<requests-per-worker>]"

// ArgumentError is a usage problem detected before any work starts
type ArgumentError struct {
	Msg string
	Err error
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// cliOptions holds parsed flags and positionals. Negative numbers and empty
// strings mean "not given" so the config file value is kept.
type cliOptions struct {
	configPath string
	timeout    time.Duration
	maxWorkers int
	logLevel   string
	verbose    bool
	label      string

	host     string
	requests string
	ignored  []string
}

func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	opts := &cliOptions{}

	fs := flag.NewFlagSet("httpbench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "c", "", "path to httpbench configuration file")
	fs.DurationVar(&opts.timeout, "timeout", -1, "per-operation network timeout (0 disables)")
	fs.IntVar(&opts.maxWorkers, "max-workers", -1, "upper bound on the number of workers")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging (debug level)")
	fs.StringVar(&opts.label, "label", "", "label included in the run id")

	if err := fs.Parse(args); err != nil {
		return nil, &ArgumentError{Msg: "invalid flags", Err: err}
	}

	rest := fs.Args()
	if len(rest) < 1 || rest[0] == "" {
		fs.Usage()
		return nil, &ArgumentError{Msg: "host is required"}
	}

	opts.host = rest[0]
	if len(rest) >= 2 {
		opts.requests = rest[1]
	}
	if len(rest) > 2 {
		opts.ignored = rest[2:]
	}

	return opts, nil
}

// levelOverride is the log level requested on the command line, if any.
// -log-level wins over -v.
func (o *cliOptions) levelOverride() string {
	if o.logLevel != "" {
		return o.logLevel
	}
	if o.verbose {
		return configtypes.LogLevelDebug
	}
	return ""
}
