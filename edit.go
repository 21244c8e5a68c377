package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"zoomzt2/internal/report"
	"zoomzt2/internal/zt2"
)

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	return data, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrResource, err)
	}
	return nil
}

func loadContainer(path string) (*zt2.Container, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	c, err := zt2.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func saveContainer(c *zt2.Container, path string) error {
	data, err := c.Build()
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// parseID accepts decimal or 0x prefixed effect ids.
func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: effect id %q: %w", ErrUsage, s, err)
	}
	return uint32(id), nil
}

func dumpCmd() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print an effect list as JSON",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			c, err := loadContainer(cmd.Args().First())
			if err != nil {
				return err
			}
			return report.WriteJSON(os.Stdout, report.Container(c))
		},
	}
}

func summaryCmd() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "List the groups and effects of an effect list",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			c, err := loadContainer(cmd.Args().First())
			if err != nil {
				return err
			}
			return report.WriteSummary(os.Stdout, c)
		},
	}
}

func scriptCmd() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "Print the add commands that rebuild an effect list into TARGET",
		ArgsUsage: "FILE TARGET",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			c, err := loadContainer(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			return report.WriteScript(os.Stdout, c, "zoomzt2", cmd.Args().Get(1))
		},
	}
}

// outputFlag is shared by the commands that edit an effect list. Without it
// the input file is rewritten in place.
func outputFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "output",
		Aliases:     []string{"o"},
		Usage:       "write the result here instead of over FILE",
		Destination: dst,
	}
}

// editContainer loads the list named by the last argument, applies fn and
// writes the result.
func editContainer(cmd *cli.Command, output string, fn func(c *zt2.Container) error) error {
	path := cmd.Args().Get(cmd.NArg() - 1)
	c, err := loadContainer(path)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	if output == "" {
		output = path
	}
	if err := saveContainer(c, output); err != nil {
		return err
	}
	appLog.Info("effect list written", "file", output, "effects", len(c.Effects()))
	return nil
}

func addCmd() *cli.Command {
	var id, version, output string

	return &cli.Command{
		Name:      "add",
		Usage:     "Add an effect to an effect list",
		ArgsUsage: "NAME FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "effect id, the top byte selects the group",
				Required:    true,
				Destination: &id,
			},
			&cli.StringFlag{
				Name:        "version",
				Usage:       "effect version",
				Value:       "1.00",
				Destination: &version,
			},
			outputFlag(&output),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			effectID, err := parseID(id)
			if err != nil {
				return err
			}
			if _, err := zt2.ParseVersion(version); err != nil {
				return fmt.Errorf("%w: %w", ErrUsage, err)
			}
			return editContainer(cmd, output, func(c *zt2.Container) error {
				return c.AddEffect(cmd.Args().Get(0), version, effectID)
			})
		},
	}
}

func addBinaryCmd() *cli.Command {
	var output string

	return &cli.Command{
		Name:      "add-binary",
		Usage:     "Add an effect to an effect list using the identity in its binary",
		ArgsUsage: "ZD2 FILE",
		Flags:     []cli.Flag{outputFlag(&output)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			binary := cmd.Args().Get(0)
			data, err := readFile(binary)
			if err != nil {
				return err
			}
			d, err := zt2.ParseDescriptor(data)
			if err != nil {
				return fmt.Errorf("%s: %w", binary, err)
			}
			appLog.Debug("descriptor", "file", binary, "name", d.Name, "version", d.Version, "group", d.GroupName())
			return editContainer(cmd, output, func(c *zt2.Container) error {
				return c.AddEffectFromDescriptor(d, binary)
			})
		},
	}
}

func removeCmd() *cli.Command {
	var output string

	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove every effect called NAME from an effect list",
		ArgsUsage: "NAME FILE",
		Flags:     []cli.Flag{outputFlag(&output)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			name := cmd.Args().Get(0)
			return editContainer(cmd, output, func(c *zt2.Container) error {
				if n := c.RemoveEffect(name); n == 0 {
					appLog.Warn("no effect removed", "name", name)
				}
				return nil
			})
		},
	}
}

func toggleCmd() *cli.Command {
	var output string

	return &cli.Command{
		Name:      "toggle",
		Usage:     "Flip the installed flag of an effect",
		ArgsUsage: "NAME FILE",
		Flags:     []cli.Flag{outputFlag(&output)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			return editContainer(cmd, output, func(c *zt2.Container) error {
				return c.ToggleInstalled(cmd.Args().Get(0))
			})
		},
	}
}
