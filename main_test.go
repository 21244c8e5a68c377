package main

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"zoomzt2/internal/pedal"
	"zoomzt2/internal/zt2"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	restore := func() {
		portPattern = pedal.DefaultPortPattern
		serialDevice = ""
		baud = pedal.DefaultBaud
		timeout = pedal.DefaultTimeout
		logLevel = "info"
		logFormat = "auto"
		configFile = ""
	}
	restore()
	t.Cleanup(restore)
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:     "zoomzt2",
		Flags:    globalFlags(),
		Commands: []*cli.Command{dumpCmd(), addCmd(), addBinaryCmd(), removeCmd(), toggleCmd()},
	}
	return app.Run(context.Background(), append([]string{"zoomzt2"}, args...))
}

func writeList(t *testing.T) string {
	t.Helper()
	c := &zt2.Container{Header: zt2.Header{Name: "FLST_SEQ"}}
	require.NoError(t, c.AddEffect("OD.ZD2", "1.00", 0x03000007))
	require.NoError(t, c.AddEffect("CHORUS.ZD2", "1.10", 0x06000010))
	data, err := c.Build()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "FLST_SEQ.ZT2")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"ZOOM G6*\"\ntimeout: 2s\nlog_format: json\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, Config{Port: "ZOOM G6*", Timeout: 2 * time.Second, LogFormat: "json"}, cfg)

	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestConfigPrecedence(t *testing.T) {
	resetGlobals(t)

	cfg := Config{Port: "CFG*", Baud: 9600, Timeout: 2 * time.Second, LogLevel: "debug"}
	t.Setenv("ZOOMZT2_BAUD", "19200")

	app := &cli.Command{
		Name:  "zoomzt2",
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, cfg)
			return nil
		},
	}
	require.NoError(t, app.Run(context.Background(), []string{"zoomzt2", "--port", "FLAG*"}))

	require.Equal(t, "FLAG*", portPattern)
	require.Equal(t, 19200, baud)
	require.Equal(t, 2*time.Second, timeout)
	require.Equal(t, "debug", logLevel)
	require.Equal(t, "auto", logFormat)
}

func TestEditCommands(t *testing.T) {
	resetGlobals(t)
	path := writeList(t)

	require.NoError(t, run(t, "add", "--id", "0x09000003", "--version", "1.20", "HALL.ZD2", path))
	require.NoError(t, run(t, "toggle", "OD.ZD2", path))
	require.NoError(t, run(t, "remove", "CHORUS.ZD2", path))

	c, err := loadContainer(path)
	require.NoError(t, err)

	_, od := c.Find("OD.ZD2")
	require.NotNil(t, od)
	require.False(t, od.Installed)

	_, chorus := c.Find("CHORUS.ZD2")
	require.Nil(t, chorus)

	g, hall := c.Find("HALL.ZD2")
	require.NotNil(t, hall)
	require.Equal(t, uint8(9), g.ID)
	require.Equal(t, "1.20", hall.Version)
}

func TestEditOutput(t *testing.T) {
	resetGlobals(t)
	path := writeList(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "NEW.ZT2")
	require.NoError(t, run(t, "remove", "--output", out, "OD.ZD2", path))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)

	c, err := loadContainer(out)
	require.NoError(t, err)
	require.Len(t, c.Effects(), 1)
}

func TestAddBinary(t *testing.T) {
	resetGlobals(t)
	path := writeList(t)

	b := []byte("ZDLFx")
	b = append(b, make([]byte, 84)...)
	b = append(b, "1.30"...)
	b = append(b, 0, 0, 8)
	b = binary.LittleEndian.AppendUint32(b, 0x08000021)
	b = append(b, "Delay\x00"...)
	bin := filepath.Join(t.TempDir(), "DELAY.ZD2")
	require.NoError(t, os.WriteFile(bin, b, 0o644))

	require.NoError(t, run(t, "add-binary", bin, path))

	c, err := loadContainer(path)
	require.NoError(t, err)
	g, e := c.Find("DELAY.ZD2")
	require.NotNil(t, e)
	require.Equal(t, uint8(8), g.ID)
	require.Equal(t, "1.30", e.Version)

	eb, err := loadBinary(bin)
	require.NoError(t, err)
	require.NoError(t, checkUpgrade(c, eb))
	e.Version = "2.00"
	require.Error(t, checkUpgrade(c, eb))
}

func TestCommandErrors(t *testing.T) {
	resetGlobals(t)
	path := writeList(t)

	require.ErrorIs(t, run(t, "dump"), ErrUsage)
	require.ErrorIs(t, run(t, "dump", filepath.Join(t.TempDir(), "nope.ZT2")), ErrResource)
	require.ErrorIs(t, run(t, "add", "--id", "bogus", "X.ZD2", path), ErrUsage)
	require.ErrorIs(t, run(t, "add", "--id", "0x03000001", "--version", "12345", "X.ZD2", path), ErrUsage)
	require.ErrorIs(t, run(t, "toggle", "NOPE.ZD2", path), zt2.ErrEffectNotFound)
}

func TestParseSlot(t *testing.T) {
	slot, err := parseSlot("42")
	require.NoError(t, err)
	require.Equal(t, 42, slot)

	_, err = parseSlot("x")
	require.ErrorIs(t, err, ErrUsage)
	_, err = parseSlot("9")
	require.ErrorIs(t, err, pedal.ErrInvalidSlot)
	_, err = parseSlot("60")
	require.ErrorIs(t, err, pedal.ErrInvalidSlot)
}

func TestParseID(t *testing.T) {
	id, err := parseID("0x03000007")
	require.NoError(t, err)
	require.Equal(t, uint32(0x03000007), id)

	id, err = parseID("16")
	require.NoError(t, err)
	require.Equal(t, uint32(16), id)

	_, err = parseID("0x1FFFFFFFF")
	require.ErrorIs(t, err, ErrUsage)
}
