package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/xhad/docqa/internal/logger"
	cfgPkg "github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/rag"
	"github.com/xhad/docqa/server"
)

const usage = `Usage: docqa [flags] <command> [command flags]

Commands:
  serve   start the HTTP and WebSocket API
  ask     answer questions about one document

Flags:
`

type globalFlags struct {
	configPath string
	envFile    string
	ollamaURL  string
	dbURL      string
	model      string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var g globalFlags
	fset := flag.NewFlagSet("docqa", flag.ContinueOnError)
	fset.Usage = func() {
		fmt.Fprint(fset.Output(), usage)
		fset.PrintDefaults()
	}
	fset.StringVar(&g.configPath, "config", "", "Path to config file")
	fset.StringVar(&g.envFile, "env", ".env", "Path to .env file")
	fset.StringVar(&g.ollamaURL, "ollama-url", "", "Ollama server URL")
	fset.StringVar(&g.dbURL, "db-url", "", "PostgreSQL connection string for the postgres cache")
	fset.StringVar(&g.model, "model", "", "LLM model to use")
	fset.BoolVar(&g.verbose, "verbose", false, "Enable debug logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	logger.SetVerbose(g.verbose)

	if fset.NArg() == 0 {
		fset.Usage()
		return errors.New("missing command")
	}

	config, err := loadConfig(g)
	if err != nil {
		return err
	}

	switch cmd, rest := fset.Arg(0), fset.Args()[1:]; cmd {
	case "serve":
		return serve(ctx, config, rest)
	case "ask":
		return ask(ctx, config, rest)
	default:
		fset.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadConfig(g globalFlags) (*cfgPkg.Config, error) {
	if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", g.envFile, err)
	}

	config, err := cfgPkg.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	// Command line flags override the file and the environment
	if g.ollamaURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = g.ollamaURL
		}
		if config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = g.ollamaURL
		}
	}
	if g.dbURL != "" {
		config.Cache.DatabaseURL = g.dbURL
	}
	if g.model != "" {
		config.LLM.Model = g.model
	}

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return config, nil
}

func serve(ctx context.Context, config *cfgPkg.Config, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fset.String("addr", config.Server.Addr, "Listen address")
	if err := fset.Parse(args); err != nil {
		return err
	}

	service, err := rag.NewFromConfig(ctx, config)
	if err != nil {
		return err
	}
	defer service.Close()

	srv := server.New(service, server.Config{
		Addr:         *addr,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	})
	return srv.ListenAndServe(ctx)
}
