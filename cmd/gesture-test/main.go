// Command gesture-test runs the EVAL-CN0569-PMDZ gesture detection
// production test at an operator station.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ALU-panda/production-tests/internal/config"
	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/monitoring"
	"github.com/ALU-panda/production-tests/internal/productiontest"
	"github.com/ALU-panda/production-tests/internal/report"
	"github.com/ALU-panda/production-tests/internal/runstatus"
	"github.com/ALU-panda/production-tests/internal/simulate"
	"github.com/ALU-panda/production-tests/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Simulate the operator and the board instead of using hardware")
	portPath    = flag.String("port", "", "Serial port of the ADICUP3029 (auto-detected when empty; ignored in dev mode)")
	configPath  = flag.String("config", "", "Path to a JSON test config (built-in defaults when empty)")
	mistakes    = flag.Int("mistakes", 0, "Wrong motions the simulated operator makes per trial (dev mode only)")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker for publishing results, e.g. tcp://localhost:1883")
	debugListen = flag.String("debug-listen", "", "Listen address for the debug status page, e.g. localhost:8090")
	station     = flag.String("station", "", "Station name included in published results")
	quiet       = flag.Bool("quiet", false, "Suppress diagnostic logging")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// runOptions collects what main derives from its flags.
type runOptions struct {
	dev         bool
	port        string
	operator    simulate.Config
	mqttBroker  string
	debugListen string
	station     string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("gesture-test %s\n", version.String())
		return
	}

	if *quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetPrefix("[gesture-test] ")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, optionsFromFlags(cfg), os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}

func loadConfig(path string) (*config.TestConfig, error) {
	if path == "" {
		return config.DefaultTestConfig(), nil
	}
	return config.LoadTestConfig(path)
}

func optionsFromFlags(cfg *config.TestConfig) runOptions {
	op := simulate.DefaultConfig()
	op.Mistakes = *mistakes
	op.Pace = time.Second * time.Duration(cfg.GetBufferSamples()) / time.Duration(cfg.GetSampleRateHz())
	return runOptions{
		dev:         *devMode,
		port:        *portPath,
		operator:    op,
		mqttBroker:  *mqttBroker,
		debugListen: *debugListen,
		station:     *station,
	}
}

func controllerConfig(cfg *config.TestConfig) gesture.ControllerConfig {
	return gesture.ControllerConfig{
		Tracker: gesture.TrackerConfig{
			PresenceThreshold: cfg.GetPresenceThreshold(),
			MinActiveFrames:   cfg.GetMinActiveFrames(),
		},
		ClickDistance:  cfg.GetClickDistance(),
		MismatchBudget: cfg.GetMismatchBudget(),
		TrialTimeout:   cfg.GetTrialTimeout(),
	}
}

// run executes one test and returns the process exit code.
func run(ctx context.Context, cfg *config.TestConfig, opts runOptions, in io.Reader, out io.Writer) int {
	runID := uuid.NewString()
	status := runstatus.NewStatus(runID, time.Now())

	ropts := productiontest.Options{
		In:         in,
		Out:        out,
		Controller: controllerConfig(cfg),
		Pause:      cfg.GetInterTrialPause(),
		AbortDelay: time.Second,
		RunID:      runID,
		Station:    opts.station,
		Listeners:  []func(gesture.TrialEvent){status.Observe},
	}

	if opts.dev {
		op := simulate.NewOperator(opts.operator)
		ropts.Source = op
		ropts.Listeners = append(ropts.Listeners, op.Observe)
		monitoring.Logf("dev mode: simulated operator with %d mistakes per trial", opts.operator.Mistakes)
		defer func() { monitoring.Logf("dev mode: simulated operator performed %d motions", op.Motions()) }()
	} else {
		hw := newHardware(cfg, opts.port)
		defer hw.Close()
		ropts.Source = hw
		ropts.Setup = hw.Setup
	}

	if opts.mqttBroker != "" {
		rep, err := report.Dial(opts.mqttBroker, runID)
		if err != nil {
			monitoring.Logf("results will not be published: %v", err)
		} else {
			defer rep.Close()
			ropts.Listeners = append(ropts.Listeners, rep.Observe)
			ropts.Summary = rep
		}
	}

	if opts.debugListen != "" {
		shutdown := serveDebug(opts.debugListen, status)
		defer shutdown()
	}

	_, err := productiontest.NewRunner(ropts).Run(ctx)
	if err != nil {
		if !errors.Is(err, productiontest.ErrAborted) {
			monitoring.Logf("run %s failed: %v", runID, err)
		}
		return 1
	}
	return 0
}

// serveDebug starts the debug page on addr and returns a function that stops
// it.
func serveDebug(addr string, status *runstatus.Status) func() {
	mux := http.NewServeMux()
	status.AttachDebugRoutes(mux)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("debug server: %v", err)
		}
	}()
	monitoring.Logf("debug page on http://%s/debug/", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("debug server shutdown error: %v", err)
			server.Close()
		}
	}
}
