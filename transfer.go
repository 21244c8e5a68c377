package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"zoomzt2/internal/pedal"
	"zoomzt2/internal/report"
	"zoomzt2/internal/zptc"
	"zoomzt2/internal/zt2"
)

// effectList is the file holding the pedal's installed effect list.
const effectList = "FLST_SEQ.ZT2"

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResource, err)
	}
	if err := report.WriteJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrResource, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrResource, err)
	}
	return nil
}

func fetchList(ctx context.Context, s *pedal.Session) (*zt2.Container, error) {
	data, err := s.Fetch(ctx, effectList)
	if err != nil {
		return nil, err
	}
	c, err := zt2.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", effectList, err)
	}
	return c, nil
}

func storeList(ctx context.Context, s *pedal.Session, c *zt2.Container) error {
	data, err := c.Build()
	if err != nil {
		return err
	}
	return s.Store(ctx, effectList, data)
}

// saveEffect writes an effect binary into dir next to its icon and a JSON
// description of its identity block and parameters.
func saveEffect(dir, name string, data []byte) (*zt2.Descriptor, error) {
	path := filepath.Join(dir, name)
	if err := writeFile(path, data); err != nil {
		return nil, err
	}

	d, err := zt2.ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if d.Params, err = zt2.EffectParams(data); err != nil {
		appLog.Warn("parameter list unreadable", "name", name, "err", err)
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	if err := writeJSONFile(stem+".json", report.Effect(d, name)); err != nil {
		return nil, err
	}
	if icon, ok := zt2.Icon(data); ok {
		if err := writeFile(stem+".BMP", icon); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// fetchEffects downloads every effect named in c and returns a catalog
// enriched with what the binaries say about themselves.
func fetchEffects(ctx context.Context, s *pedal.Session, c *zt2.Container, dir string) (report.Catalog, error) {
	cat := report.NewCatalog(c)
	for _, e := range c.Effects() {
		data, err := s.Fetch(ctx, e.Name)
		if errors.Is(err, pedal.ErrFileNotFound) {
			appLog.Warn("effect listed but not on the pedal", "name", e.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		d, err := saveEffect(dir, e.Name, data)
		if err != nil {
			return nil, err
		}
		cat.AddDescriptor(d, e.Name)
	}
	return cat, nil
}

func parseSlot(s string) (int, error) {
	slot, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: slot %q: %w", ErrUsage, s, err)
	}
	if err := pedal.CheckSlot(slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func patchFile(dir string, slot int) string {
	return filepath.Join(dir, fmt.Sprintf("PATCH%02d.ZPTC", slot))
}

// fetchPatches downloads every slot into dir and describes them.
func fetchPatches(ctx context.Context, s *pedal.Session, dir string, cat report.Catalog) ([]report.PatchReport, error) {
	var reports []report.PatchReport
	for slot := pedal.FirstSlot; slot <= pedal.LastSlot; slot++ {
		data, err := s.DownloadPatch(ctx, slot)
		if err != nil {
			return nil, err
		}
		if data == nil {
			appLog.Debug("empty slot", "slot", slot)
			continue
		}
		if err := writeFile(patchFile(dir, slot), data); err != nil {
			return nil, err
		}
		p, err := zptc.Parse(data)
		if err != nil {
			appLog.Warn("patch not decoded", "slot", slot, "err", err)
			continue
		}
		r := report.Patch(p, cat)
		r.Slot = slot
		reports = append(reports, r)
	}
	return reports, nil
}

func receiveCmd() *cli.Command {
	var all string

	return &cli.Command{
		Name:      "receive",
		Usage:     "Download the effect list from the pedal",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "all",
				Usage:       "also download every effect binary and patch into this directory",
				Destination: &all,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			data, err := s.Fetch(ctx, effectList)
			if err != nil {
				return err
			}
			c, err := zt2.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", effectList, err)
			}
			if err := writeFile(cmd.Args().First(), data); err != nil {
				return err
			}
			appLog.Info("effect list received", "file", cmd.Args().First(), "effects", len(c.Effects()))

			if all == "" {
				return nil
			}
			if err := os.MkdirAll(all, 0o755); err != nil {
				return fmt.Errorf("%w: %w", ErrResource, err)
			}
			cat, err := fetchEffects(ctx, s, c, all)
			if err != nil {
				return err
			}
			if err := writeJSONFile(filepath.Join(all, "allfx.json"), catalogList(cat)); err != nil {
				return err
			}
			patches, err := fetchPatches(ctx, s, all, cat)
			if err != nil {
				return err
			}
			return writeJSONFile(filepath.Join(all, "allpatches.json"), patches)
		},
	}
}

// catalogList flattens a catalog for export, bypass excluded.
func catalogList(cat report.Catalog) []report.EffectInfo {
	var out []report.EffectInfo
	for key, info := range cat {
		if key == (report.EffectKey{}) {
			continue
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b report.EffectInfo) int {
		return cmp.Compare(a.File, b.File)
	})
	return out
}

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Upload an effect list to the pedal",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			c, err := loadContainer(cmd.Args().First())
			if err != nil {
				return err
			}
			data, err := c.Build()
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			if err := s.Store(ctx, effectList, data); err != nil {
				return err
			}
			appLog.Info("effect list sent", "effects", len(c.Effects()))
			return nil
		},
	}
}

type effectBinary struct {
	name string
	data []byte
	desc *zt2.Descriptor
}

func loadBinary(path string) (*effectBinary, error) {
	name, err := pedal.FileName(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	d, err := zt2.ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &effectBinary{name: name, data: data, desc: d}, nil
}

// checkUpgrade refuses to replace an effect with an older version.
func checkUpgrade(c *zt2.Container, b *effectBinary) error {
	_, e := c.Find(b.name)
	if e == nil {
		return nil
	}
	order, err := zt2.CompareVersions(b.desc.Version, e.Version)
	if err != nil {
		return err
	}
	if order < 0 {
		return fmt.Errorf("%s: version %s is older than installed %s", b.name, b.desc.Version, e.Version)
	}
	return nil
}

func installCmd() *cli.Command {
	var register, force bool

	return &cli.Command{
		Name:      "install",
		Usage:     "Upload effect binaries to the pedal",
		ArgsUsage: "ZD2...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "register",
				Usage:       "also add the effects to the pedal's effect list",
				Destination: &register,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "allow replacing an effect with an older version",
				Destination: &force,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return needArgs(cmd, 1, 1)
			}

			var bins []*effectBinary
			for _, path := range cmd.Args().Slice() {
				b, err := loadBinary(path)
				if err != nil {
					return err
				}
				bins = append(bins, b)
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			var c *zt2.Container
			if register {
				if c, err = fetchList(ctx, s); err != nil {
					return err
				}
				if !force {
					for _, b := range bins {
						if err := checkUpgrade(c, b); err != nil {
							return err
						}
					}
				}
			}

			for _, b := range bins {
				if err := s.Store(ctx, b.name, b.data); err != nil {
					return err
				}
				appLog.Info("effect installed", "name", b.name, "effect", b.desc.Name, "version", b.desc.Version)
			}

			if !register {
				return nil
			}
			for _, b := range bins {
				if err := c.AddEffectFromDescriptor(b.desc, b.name); err != nil {
					return err
				}
			}
			return storeList(ctx, s, c)
		},
	}
}

func uninstallCmd() *cli.Command {
	var unregister bool

	return &cli.Command{
		Name:      "uninstall",
		Usage:     "Delete an effect binary from the pedal",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "unregister",
				Usage:       "also remove the effect from the pedal's effect list",
				Destination: &unregister,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			name, err := pedal.FileName(cmd.Args().First())
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			ok, err := s.FileExists(ctx, name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", name, pedal.ErrFileNotFound)
			}
			if err := s.DeleteFile(ctx, name); err != nil {
				return err
			}
			if err := s.CloseFile(ctx); err != nil {
				return err
			}
			appLog.Info("effect deleted", "name", name)

			if !unregister {
				return nil
			}
			c, err := fetchList(ctx, s)
			if err != nil {
				return err
			}
			if c.RemoveEffect(name) == 0 {
				appLog.Warn("effect was not in the effect list", "name", name)
				return nil
			}
			return storeList(ctx, s, c)
		},
	}
}

func getfileCmd() *cli.Command {
	var dir string

	return &cli.Command{
		Name:      "getfile",
		Usage:     "Download an effect binary with its icon and identity",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "directory to write into",
				Value:       ".",
				Destination: &dir,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			name, err := pedal.FileName(cmd.Args().First())
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			data, err := s.Fetch(ctx, name)
			if err != nil {
				return err
			}
			d, err := saveEffect(dir, name, data)
			if err != nil {
				return err
			}
			appLog.Info("effect received", "name", name, "effect", d.Name, "version", d.Version, "group", d.GroupName())
			return nil
		},
	}
}

func lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List files on the pedal",
		ArgsUsage: "[PATTERN]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 0, 1); err != nil {
				return err
			}
			pattern := "*"
			if cmd.NArg() == 1 {
				pattern = cmd.Args().First()
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			names, err := s.ListFiles(ctx, pattern)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func patchCmd() *cli.Command {
	return &cli.Command{
		Name:  "patch",
		Usage: "Move and inspect patches",
		Commands: []*cli.Command{
			patchGetCmd(),
			patchPutCmd(),
			patchAllCmd(),
			patchShowCmd(),
			patchRenameCmd(),
		},
	}
}

func patchGetCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Download the patch in SLOT",
		ArgsUsage: "SLOT FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			slot, err := parseSlot(cmd.Args().Get(0))
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			data, err := s.DownloadPatch(ctx, slot)
			if err != nil {
				return err
			}
			if data == nil {
				appLog.Warn("slot is empty", "slot", slot)
				return nil
			}
			return writeFile(cmd.Args().Get(1), data)
		},
	}
}

func patchPutCmd() *cli.Command {
	var force bool

	return &cli.Command{
		Name:      "put",
		Usage:     "Upload a patch into SLOT",
		ArgsUsage: "SLOT FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "upload even if the file does not decode as a patch",
				Destination: &force,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			slot, err := parseSlot(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			data, err := readFile(cmd.Args().Get(1))
			if err != nil {
				return err
			}
			if len(data) == 0 {
				appLog.Warn("empty patch not uploaded", "slot", slot)
				return nil
			}
			if !force {
				if _, err := zptc.Parse(data); err != nil {
					return fmt.Errorf("%s: %w", cmd.Args().Get(1), err)
				}
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			return s.UploadPatch(ctx, slot, data)
		},
	}
}

func patchAllCmd() *cli.Command {
	return &cli.Command{
		Name:      "all",
		Usage:     "Download every patch into DIR",
		ArgsUsage: "DIR",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			dir := cmd.Args().First()
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: %w", ErrResource, err)
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			c, err := fetchList(ctx, s)
			if err != nil {
				return err
			}
			patches, err := fetchPatches(ctx, s, dir, report.NewCatalog(c))
			if err != nil {
				return err
			}
			appLog.Info("patches received", "dir", dir, "count", len(patches))
			return writeJSONFile(filepath.Join(dir, "allpatches.json"), patches)
		},
	}
}

func patchShowCmd() *cli.Command {
	var list string

	return &cli.Command{
		Name:      "show",
		Usage:     "Print a patch file as JSON",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "effects",
				Usage:       "effect list used to name the patch's effects",
				Destination: &list,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 1, 1); err != nil {
				return err
			}
			data, err := readFile(cmd.Args().First())
			if err != nil {
				return err
			}
			p, err := zptc.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.Args().First(), err)
			}

			var cat report.Catalog
			if list != "" {
				c, err := loadContainer(list)
				if err != nil {
					return err
				}
				cat = report.NewCatalog(c)
			}
			return report.WriteJSON(os.Stdout, report.Patch(p, cat))
		},
	}
}

func patchRenameCmd() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename the patch in SLOT",
		ArgsUsage: "SLOT NAME",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := needArgs(cmd, 2, 2); err != nil {
				return err
			}
			slot, err := parseSlot(cmd.Args().Get(0))
			if err != nil {
				return err
			}

			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			return renamePatch(ctx, s, slot, cmd.Args().Get(1))
		},
	}
}

// renamePatch rewrites the name in the patch header of slot.
func renamePatch(ctx context.Context, s *pedal.Session, slot int, name string) error {
	data, err := s.DownloadPatch(ctx, slot)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("slot %d is empty", slot)
	}
	p, err := zptc.Parse(data)
	if err != nil {
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	if err := p.SetName(name); err != nil {
		return err
	}
	out, err := p.Build()
	if err != nil {
		return err
	}
	return s.UploadPatch(ctx, slot, out)
}
