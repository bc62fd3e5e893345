package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/arbor/internal"
	pkgconfig "github.com/starford/arbor/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func tree(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" {
		path = "/"
	}
	return internal.PrintTree(ctx, cmd.String("workspace"), path, int(cmd.Int("depth")), internal.WithConfig(cfg))
}

func importDocument(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: import [--under PATH] FILE")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	n, err := internal.ImportFile(ctx, cmd.String("workspace"), cmd.String("under"), cmd.Args().First(),
		cmd.String("conflict"), internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "imported %d nodes\n", n)
	return nil
}

func exportDocument(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" {
		path = "/"
	}
	return internal.ExportFile(ctx, cmd.String("workspace"), path, int(cmd.Int("depth")), internal.WithConfig(cfg))
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "workspace",
		Aliases: []string{"w"},
		Usage:   "Workspace name (default workspace when empty)",
	}
}

func depthFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "depth",
		Usage: "Levels below the node to include (0 for all)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "arbor",
		Usage:  "Path-based content repository with pluggable connectors",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the JSON API and change stream over HTTP",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
			{
				Name:      "tree",
				Usage:     "Print a branch as a table",
				ArgsUsage: "[PATH]",
				Flags:     []cli.Flag{workspaceFlag(), depthFlag()},
				Action:    tree,
			},
			{
				Name:      "import",
				Usage:     "Import a YAML document in one transaction",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "under", Value: "/", Usage: "Parent node path"},
					&cli.StringFlag{Name: "conflict", Value: "append", Usage: "append or replace"},
				},
				Action: importDocument,
			},
			{
				Name:      "export",
				Usage:     "Write a branch as a YAML document to stdout",
				ArgsUsage: "[PATH]",
				Flags:     []cli.Flag{workspaceFlag(), depthFlag()},
				Action:    exportDocument,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
