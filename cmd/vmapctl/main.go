package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
	"github.com/netsec-ethz/vmapclient/pkg/util"
)

const waitForExitBeforePanicTime = 10 * time.Second

func main() {
	os.Exit(mainFunc())
}

func mainFunc() int {
	// Because some packages (glog) change the flags to main, and we don't want/need them, reset
	// the flags before touching them.
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n%s [flags] configuration_file command [args...]\n\n",
			os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %-40s %s\n", c.name+" "+c.args, c.help)
		}
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}
	createSampleConfig := flag.Bool("createSampleConfig", false,
		"Create configuration file specified by positional argument")
	size := flag.Int64("size", 0, "Tree size to read at. 0 means the latest one")
	format := flag.String("format", mapclient.RawFormat.String(),
		"Entry format: raw, json or redactable-json")
	wait := flag.Bool("wait", false,
		"After set or delete, wait until the map reflects the mutation")
	hexKeys := flag.Bool("hex", false, "Keys are given hex encoded")
	flag.Parse()
	defer glog.Flush()

	if *createSampleConfig {
		if flag.NArg() != 1 {
			flag.Usage()
			return 1
		}
		return manageError(WriteConfigurationToFile(flag.Arg(0), sampleConfig()))
	}

	// We need the configuration file and the command as positional arguments.
	if flag.NArg() < 2 {
		flag.Usage()
		return 1
	}
	f, err := mapclient.ParseFormat(*format)
	if err != nil {
		return manageError(err)
	}
	opts := options{
		size:    treeSizeFromFlag(*size),
		format:  f,
		wait:    *wait,
		hexKeys: *hexKeys,
	}
	return manageError(run(opts))
}

func run(opts options) error {
	// Set SIGTERM handler. The context we get is cancelled if one of those signals is caught.
	ctx, cancel := util.ContextWithCancelOnSignal(context.Background(),
		waitForExitBeforePanicTime, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	config, err := ReadConfigFromFile(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	transport := mapclient.NewHTTPTransport(config.BaseURL, config.Account, config.APIKey, nil,
		config.RequestTimeout.Duration)
	m := mapclient.NewVerifiableMap(transport, config.MapName,
		mapclient.WithHeadCacheSize(config.HeadCacheSize))

	return runCommand(ctx, newClient(m, os.Stdout, opts), flag.Arg(1), flag.Args()[2:])
}

func treeSizeFromFlag(size int64) mapclient.TreeSize {
	if size == 0 {
		return mapclient.Head
	}
	return mapclient.Exact(size)
}

func manageError(err error) int {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}
