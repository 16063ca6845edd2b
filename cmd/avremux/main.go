package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avcore/global"
	"github.com/xaionaro-go/avcore/pipeline"
	"github.com/xaionaro-go/observability"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] [<URL-from> <URL-to>]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	configPath := pflag.String("config", "", "path to a YAML file describing the job")
	backendName := pflag.String("backend", backendNameLibav, "the media backend: libav or fake")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print the statistics; 0 disables printing")
	pflag.Parse()
	if len(pflag.Args()) != 0 && len(pflag.Args()) != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg, err := loadConfig(*configPath, pflag.Args())
	if err != nil {
		l.Fatal(err)
	}
	logger.Debugf(observability.OnInsecureDebug(ctx), "config: %s", spew.Sdump(cfg))

	chainCfg, err := cfg.Convert()
	if err != nil {
		l.Fatal(err)
	}

	backend, err := newBackend(ctx, *backendName)
	if err != nil {
		l.Fatal(err)
	}
	global.Init(ctx, backend)
	defer global.Deinit(ctx)

	l.Debugf("opening '%s' -> '%s'...", cfg.Input.URL, cfg.Output.URL)
	chain, err := pipeline.NewChain(ctx, backend, cfg.Input.URL, cfg.Output.URL, chainCfg)
	if err != nil {
		l.Fatal(err)
	}

	errCh := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		defer cancelFn()
		errCh <- chain.Serve(ctx)
	})

	l.Debugf("started %s", chain)
	var tickerCh <-chan time.Time
	if *statsInterval > 0 {
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		tickerCh = t.C
	}
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-tickerCh:
			printStats(chain.GetStats())
		}
	}

	serveErr := <-errCh
	if errors.Is(serveErr, context.Canceled) {
		l.Infof("interrupted")
		serveErr = nil
	}
	closeErr := chain.Close()
	printStats(chain.GetStats())
	reportStored(ctx, backend, cfg.Output.URL)

	for _, err := range []error{serveErr, closeErr} {
		if err == nil {
			continue
		}
		errmon.ObserveErrorCtx(ctx, err)
		l.Error(err)
		belt.Flush(ctx)
		os.Exit(1)
	}
}

func printStats(stats pipeline.Statistics) {
	fmt.Printf("r:%d w:%d\n", stats.BytesCountRead, stats.BytesCountWrote)
}
