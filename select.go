package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func selectCmd() *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Switch the pedal to the patch in SLOT",
		ArgsUsage: "SLOT",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			slot, err := parseSlot(cmd.Args().First())
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			if err := s.SelectPatch(ctx, slot); err != nil {
				return err
			}
			appLog.Info("patch selected", "slot", slot)
			return nil
		},
	}
}
