// Command agentcore is the process entry point: it loads configuration,
// opens the session store, wires the provider/tool registries into an
// orchestrator, and starts one of the front-end transports. Grounded on
// cli/cli.go and cli/start_command.go's "load .env, load config, start
// server" shape, restructured onto github.com/urfave/cli/v3's
// command/flag API rather than the teacher's flag/os.Args dispatch,
// since urfave/cli/v3 is the CLI library the wider example pack
// converges on.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidecore/agentcore/config"
	"github.com/sidecore/agentcore/frontend/acp"
	"github.com/sidecore/agentcore/frontend/httpsse"
	"github.com/sidecore/agentcore/frontend/term"
	applogger "github.com/sidecore/agentcore/logger"
	"github.com/sidecore/agentcore/orchestrator"
	"github.com/sidecore/agentcore/provider"
	"github.com/sidecore/agentcore/secretmanager"
	"github.com/sidecore/agentcore/store/sqlite"
	"github.com/sidecore/agentcore/tool"
	"github.com/sidecore/agentcore/tool/builtin"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "agentcore",
		Usage: "local-first agentic coding assistant orchestrator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Usage: "path to the sqlite session database", Value: defaultDBPath()},
			&cli.StringFlag{Name: "config-dir", Usage: "directory to search for agentcore.toml/yaml", Value: "."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			acpCommand(),
			chatCommand(),
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDBPath() string {
	dir, err := applogger.StateDir()
	if err != nil {
		return "agentcore.db"
	}
	return filepath.Join(dir, "agentcore.db")
}

// bootstrap wires every non-transport dependency shared by all commands:
// config, logger, sqlite store, secret manager, provider registry, tool
// registry, and the orchestrator itself.
func bootstrap(cmd *cli.Command) (*orchestrator.Orchestrator, *sqlite.Storage, error) {
	cfg, err := config.Load(cmd.String("config-dir"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := applogger.Get()

	db, err := sqlite.Open(cmd.String("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlite.MigrateUp(db); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	store := sqlite.NewStorage(db)

	secrets := secretmanager.Composite{Managers: []secretmanager.SecretManager{
		secretmanager.EnvManager{},
	}}
	if credPath := os.Getenv("AGENTCORE_CREDENTIALS_FILE"); credPath != "" {
		fm, err := secretmanager.NewFileManager(credPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading credentials file: %w", err)
		}
		secrets.Managers = append([]secretmanager.SecretManager{fm}, secrets.Managers...)
	}

	registry := tool.NewRegistry()
	registerBuiltinTools(registry)

	orch := &orchestrator.Orchestrator{
		Store:     store,
		Providers: provider.NewRegistry(),
		Tools:     registry,
		Secrets:   secrets,
		Config:    orchestratorConfigFrom(cfg),
		Log:       log,
	}
	return orch, store, nil
}

func registerBuiltinTools(r *tool.Registry) {
	r.Register(builtin.ReadTool{})
	r.Register(builtin.WriteTool{})
	r.Register(builtin.EditTool{})
	r.Register(builtin.MultiEditTool{})
	r.Register(builtin.ApplyPatchTool{})
	r.Register(builtin.GlobTool{})
	r.Register(builtin.GrepTool{})
	r.Register(builtin.ListTool{})
	r.Register(builtin.BashTool{})
	r.Register(builtin.ProcessesTool{})
	r.Register(builtin.ExploreTool{})
	r.Register(builtin.BuildTool{})
	r.Register(builtin.AskUserTool{})
	r.Register(builtin.EnterPlanModeTool{})
	r.Register(builtin.SetWorkModeTool{})
	r.Register(builtin.NewTaskUpdateTool("task_update"))
}

func orchestratorConfigFrom(cfg config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.ToolParallelism = cfg.ToolParallelism
	oc.MaxIterations = cfg.MaxIterations
	if cfg.InactivityTimeoutS > 0 {
		oc.InactivityTimeout = time.Duration(cfg.InactivityTimeoutS) * time.Second
	}
	oc.MutatingTools = config.MutatingTools()
	approval := map[string]bool{}
	for _, name := range cfg.ApprovalRequired {
		approval[name] = true
	}
	oc.ApprovalRequired = approval
	return oc
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP/SSE front-end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8787"},
			&cli.StringFlag{Name: "allowed-origins", Value: ""},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			orch, store, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			origins, err := httpsse.ParseAllowedOrigins(cmd.String("allowed-origins"))
			if err != nil {
				return err
			}
			srv := httpsse.NewServer(orch, store, orch.Log)
			engine := httpsse.NewEngine(srv, origins)
			log.Info().Str("addr", cmd.String("addr")).Msg("starting HTTP/SSE server")
			return engine.Run(cmd.String("addr"))
		},
	}
}

func acpCommand() *cli.Command {
	return &cli.Command{
		Name:  "acp",
		Usage: "run the agent-client-protocol stdio front-end",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			orch, store, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			// Headless ACP mode auto-approves every tool, per spec.md §6:
			// the editor is responsible for consent before spawning this process.
			orch.Config.ApprovalRequired = map[string]bool{}
			srv := acp.NewServer(orch, store, orch.Log)
			srv.Serve(ctx, os.Stdin, os.Stdout)
			return nil
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "run one turn loop against an existing session and print it to stdout",
		ArgsUsage: "<session-id> <message>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("usage: agentcore chat <session-id> <message>")
			}
			orch, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			sessionID := cmd.Args().Get(0)
			message := cmd.Args().Get(1)
			return term.Run(ctx, orch, sessionID, message, os.Stdout)
		},
	}
}
