package main

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"

	"zoomzt2/internal/pedal"
	"zoomzt2/internal/report"
	"zoomzt2/internal/zptc"
)

//go:embed protocol.txt
var protocolDoc string

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve pedal tools to an MCP client over stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, closer, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closer()

			return runMCP(&pedalTools{session: s})
		},
	}
}

// pedalTools backs the MCP tools with one open session. The catalog is
// built on first use and dropped whenever the effect list changes.
type pedalTools struct {
	session *pedal.Session

	mu  sync.Mutex
	cat report.Catalog
}

func (t *pedalTools) catalog(ctx context.Context) (report.Catalog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cat != nil {
		return t.cat, nil
	}
	c, err := fetchList(ctx, t.session)
	if err != nil {
		return nil, err
	}
	t.cat = report.NewCatalog(c)
	return t.cat, nil
}

func (t *pedalTools) invalidate() {
	t.mu.Lock()
	t.cat = nil
	t.mu.Unlock()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func requireSlot(request mcp.CallToolRequest) (int, error) {
	slot, err := request.RequireInt("slot")
	if err != nil {
		return 0, err
	}
	return slot, pedal.CheckSlot(slot)
}

func runMCP(t *pedalTools) error {
	s := server.NewMCPServer(
		"Zoom pedal MCP",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	docTool := mcp.NewTool("zoom_describe-protocol",
		mcp.WithDescription("Returns a description of the pedal's file and patch transfer protocol and of the effect list layout."),
	)
	s.AddTool(docTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		appLog.Debug("mcp: describe protocol")
		return mcp.NewToolResultText(protocolDoc), nil
	})

	listEffectsTool := mcp.NewTool("zoom_list-effects",
		mcp.WithDescription("Returns the pedal's effect list: groups, effect files, versions, ids and installed flags."),
	)
	s.AddTool(listEffectsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		appLog.Debug("mcp: list effects")

		c, err := fetchList(ctx, t.session)
		if err != nil {
			return nil, fmt.Errorf("failed to read effect list: %w", err)
		}
		return jsonResult(report.Container(c))
	})

	listFilesTool := mcp.NewTool("zoom_list-files",
		mcp.WithDescription("Lists the files stored on the pedal."),
		mcp.WithString("pattern", mcp.Description("Glob the names must match, for example *.ZD2. Defaults to *.")),
	)
	s.AddTool(listFilesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern := request.GetString("pattern", "*")
		appLog.Debug("mcp: list files", "pattern", pattern)

		names, err := t.session.ListFiles(ctx, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}
		return jsonResult(names)
	})

	getPatchTool := mcp.NewTool("zoom_get-patch",
		mcp.WithDescription("Retrieves a patch from the pedal with its name, description and effect chain."),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("The patch slot (10-59).")),
	)
	s.AddTool(getPatchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slot, err := requireSlot(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		appLog.Debug("mcp: get patch", "slot", slot)

		data, err := t.session.DownloadPatch(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("failed to read patch: %w", err)
		}
		if data == nil {
			return mcp.NewToolResultText(fmt.Sprintf("Slot %d is empty.", slot)), nil
		}
		p, err := zptc.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode patch: %w", err)
		}
		cat, err := t.catalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read effect list: %w", err)
		}
		r := report.Patch(p, cat)
		r.Slot = slot
		return jsonResult(r)
	})

	renamePatchTool := mcp.NewTool("zoom_rename-patch",
		mcp.WithDescription("Renames a patch on the pedal."),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("The patch slot (10-59).")),
		mcp.WithString("name", mcp.Required(), mcp.Description("The new name, at most 10 characters.")),
	)
	s.AddTool(renamePatchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slot, err := requireSlot(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		appLog.Debug("mcp: rename patch", "slot", slot, "name", name)

		if err := renamePatch(ctx, t.session, slot, name); err != nil {
			return nil, fmt.Errorf("failed to rename patch: %w", err)
		}
		return mcp.NewToolResultText("Patch renamed successfully."), nil
	})

	selectPatchTool := mcp.NewTool("zoom_select-patch",
		mcp.WithDescription("Switches the pedal to a patch."),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("The patch slot (10-59).")),
	)
	s.AddTool(selectPatchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slot, err := requireSlot(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		appLog.Debug("mcp: select patch", "slot", slot)

		if err := t.session.SelectPatch(ctx, slot); err != nil {
			return nil, fmt.Errorf("failed to select patch: %w", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Slot %d selected.", slot)), nil
	})

	toggleTool := mcp.NewTool("zoom_toggle-effect",
		mcp.WithDescription("Flips the installed flag of an effect in the pedal's effect list."),
		mcp.WithString("name", mcp.Required(), mcp.Description("The effect file name, for example OD.ZD2.")),
	)
	s.AddTool(toggleTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		appLog.Debug("mcp: toggle effect", "name", name)

		c, err := fetchList(ctx, t.session)
		if err != nil {
			return nil, fmt.Errorf("failed to read effect list: %w", err)
		}
		if err := c.ToggleInstalled(name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := storeList(ctx, t.session, c); err != nil {
			return nil, fmt.Errorf("failed to write effect list: %w", err)
		}
		t.invalidate()
		return jsonResult(report.Container(c))
	})

	appLog.Info("starting MCP server", "session", t.session.ID())

	return server.ServeStdio(s)
}
