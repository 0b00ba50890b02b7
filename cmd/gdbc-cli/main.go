package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gdbc/internal/cli/command"
	"gdbc/internal/cli/config"
	"gdbc/internal/cli/http"
	"gdbc/internal/cli/repl"
	"gdbc/internal/cli/state"

	"github.com/chzyer/readline"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	sessionState, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}

	commands := command.Registry()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "gdbc> ",
		HistoryFile:       cfg.HistoryPath,
		AutoComplete:      repl.Completer(commands),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init terminal failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	session := repl.New(client, commands, &sessionState, rl, rl.Stdout(), repl.Options{
		StatePath:    cfg.StatePath,
		PrettyJSON:   cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		PollInterval: cfg.PollInterval,
	})
	session.Run(context.Background())
}
