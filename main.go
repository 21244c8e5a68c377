package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"zoomzt2/internal/logger"
	"zoomzt2/internal/pedal"
)

var (
	// ErrResource marks failures of local files, as opposed to the pedal.
	ErrResource = errors.New("local resource")
	ErrUsage    = errors.New("usage")
)

// Global options. Flags and ZOOMZT2_* environment variables win over the
// config file, which wins over the defaults below.
var (
	portPattern  = pedal.DefaultPortPattern
	serialDevice string
	baud         = pedal.DefaultBaud
	timeout      = pedal.DefaultTimeout
	logLevel     = "info"
	logFormat    = "auto"
	configFile   = configPath()

	appLog = logger.Discard()
)

func main() {
	app := &cli.Command{
		Name:   "zoomzt2",
		Usage:  "Manage effects and patches on Zoom G-series pedals",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			dumpCmd(),
			summaryCmd(),
			scriptCmd(),
			addCmd(),
			addBinaryCmd(),
			removeCmd(),
			toggleCmd(),
			receiveCmd(),
			sendCmd(),
			installCmd(),
			uninstallCmd(),
			getfileCmd(),
			lsCmd(),
			patchCmd(),
			selectCmd(),
			mcpCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "port",
			Aliases:     []string{"p"},
			Usage:       "glob matched against MIDI port names",
			Value:       portPattern,
			Destination: &portPattern,
			Sources:     cli.EnvVars("ZOOMZT2_PORT"),
		},
		&cli.StringFlag{
			Name:        "serial",
			Usage:       "talk to the pedal through a serial MIDI device instead of a MIDI port",
			Destination: &serialDevice,
			Sources:     cli.EnvVars("ZOOMZT2_SERIAL"),
		},
		&cli.IntFlag{
			Name:        "baud",
			Usage:       "serial line speed",
			Value:       baud,
			Destination: &baud,
			Sources:     cli.EnvVars("ZOOMZT2_BAUD"),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "how long to wait for each reply from the pedal",
			Value:       timeout,
			Destination: &timeout,
			Sources:     cli.EnvVars("ZOOMZT2_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error",
			Value:       logLevel,
			Destination: &logLevel,
			Sources:     cli.EnvVars("ZOOMZT2_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "auto, pretty, text or json",
			Value:       logFormat,
			Destination: &logFormat,
			Sources:     cli.EnvVars("ZOOMZT2_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file",
			Value:       configFile,
			Destination: &configFile,
			Sources:     cli.EnvVars("ZOOMZT2_CONFIG"),
		},
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	applyConfig(cmd, cfg)

	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	appLog = logger.Open(os.Stderr, format, logger.ParseLevel(logLevel))
	return logger.WithContext(ctx, appLog), nil
}

// needArgs checks the number of positional arguments.
func needArgs(cmd *cli.Command, min, max int) error {
	n := cmd.NArg()
	if n >= min && n <= max {
		return nil
	}
	if min == max {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrUsage, cmd.Name, min, n)
	}
	return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", ErrUsage, cmd.Name, min, max, n)
}

// provider picks the serial link when one is configured and the MIDI
// driver otherwise.
func provider() (pedal.Provider, func()) {
	if serialDevice != "" {
		return &pedal.SerialProvider{Device: serialDevice, Baud: baud}, func() {}
	}
	p := &pedal.MIDIProvider{}
	return p, p.Close
}

// connect opens a session with the pedal. The returned closer leaves
// control mode and releases the ports.
func connect(ctx context.Context) (*pedal.Session, func(), error) {
	p, closeDriver := provider()
	pattern := portPattern
	if serialDevice != "" {
		pattern = serialDevice
	}

	s := pedal.NewSession(pedal.Options{Timeout: timeout, Logger: appLog})
	if err := s.Connect(ctx, p, pattern); err != nil {
		closeDriver()
		return nil, nil, err
	}

	closer := func() {
		dctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
		defer cancel()
		if err := s.Disconnect(dctx); err != nil {
			appLog.Warn("disconnect", "err", err)
		}
		closeDriver()
	}
	return s, closer, nil
}
