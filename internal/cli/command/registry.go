package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const defaultCompiler = "gcc"

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	runFields := []Field{
		{Name: "file", Aliases: []string{"source_file", "src"}, Prompt: "source file", Type: FieldFile, Required: true, JSON: "source_code"},
		{Name: "language", Aliases: []string{"lang"}, Prompt: "language (c|cpp)", Type: FieldString, Required: true, Query: "language"},
		{Name: "compiler", Aliases: []string{"compiler_type", "cc"}, Prompt: "compiler (gcc|clang)", Type: FieldString, Required: true, Query: "compiler_type"},
		{Name: "options", Aliases: []string{"compiler_options", "flags"}, Type: FieldString, JSON: "compiler_options"},
		{Name: "args", Aliases: []string{"command_line_arguments", "argv"}, Type: FieldString, JSON: "command_line_arguments"},
		{Name: "stdin", Type: FieldString, JSON: "stdin"},
	}
	pidField := Field{Name: "pid", Prompt: "pid", Type: FieldInt, Required: true, Query: "pid"}

	commands := []Command{
		{
			Service: "run",
			Action:  "text",
			Method:  "POST",
			Path:    "/run/text-mode",
			Usage:   "run text file=main.c [language=c] [compiler=gcc] [options=-O2] [args=\"a b\"] [stdin=...]",
			Fields:  runFields,
			Prepare: prepareRun,
		},
		{
			Service: "run",
			Action:  "interactive",
			Method:  "POST",
			Path:    "/run/interactive-mode",
			Usage:   "run interactive file=main.cpp [compiler=clang]",
			Fields:  runFields,
			Prepare: prepareRun,
		},
		{
			Service: "run",
			Action:  "debug",
			Method:  "POST",
			Path:    "/run/debugger",
			Usage:   "run debug file=main.c",
			Fields:  runFields,
			Prepare: prepareRun,
		},
		{
			Service: "proc",
			Action:  "input",
			Method:  "POST",
			Path:    "/input",
			Usage:   "proc input pid=0 stdin=\"1 2\"",
			Fields: []Field{
				pidField,
				{Name: "stdin", Prompt: "stdin", Type: FieldString, Required: true, JSON: "stdin"},
			},
		},
		{
			Service: "proc",
			Action:  "poll",
			Method:  "GET",
			Path:    "/program",
			Usage:   "proc poll pid=0",
			Fields:  []Field{pidField},
		},
		{
			Service: "proc",
			Action:  "stop",
			Method:  "POST",
			Path:    "/stop",
			Usage:   "proc stop pid=0",
			Fields:  []Field{pidField},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns the registry keys in sorted order.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// prepareRun infers language from the file extension and defaults the compiler.
func prepareRun(params Params) error {
	if params.Get("language") == "" && params.Get("file") != "" {
		if lang, ok := LanguageFromPath(params.Get("file")); ok {
			params.Set("language", lang)
		}
	}
	if params.Get("compiler") == "" {
		params.Set("compiler", defaultCompiler)
	}
	return nil
}

// Resolve canonicalizes aliases and fills derived params. It is idempotent.
func Resolve(cmd Command, params Params) error {
	params.Canonicalize(cmd.Fields)
	if cmd.Prepare != nil {
		return cmd.Prepare(params)
	}
	return nil
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if err := Resolve(cmd, params); err != nil {
		return RequestSpec{}, err
	}

	query := url.Values{}
	payload := map[string]interface{}{}
	for _, field := range cmd.Fields {
		if !params.Has(field.Name) {
			if field.Required {
				return RequestSpec{}, fmt.Errorf("missing parameter: %s", field.Name)
			}
			continue
		}
		value, err := fieldValue(field, params.Get(field.Name))
		if err != nil {
			return RequestSpec{}, err
		}
		if field.Required && value == "" {
			return RequestSpec{}, fmt.Errorf("missing parameter: %s", field.Name)
		}
		if field.Query != "" {
			query.Set(field.Query, value)
		}
		if field.JSON != "" {
			payload[field.JSON] = value
		}
	}

	path := cmd.Path
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	headers := map[string]string{}
	var body []byte
	if cmd.Method != "GET" {
		headers["Content-Type"] = "application/json"
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func fieldValue(field Field, raw string) (string, error) {
	switch field.Type {
	case FieldInt:
		n, err := ParseInt(raw)
		if err != nil {
			return "", fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return fmt.Sprint(n), nil
	case FieldFile:
		return ReadFile(strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}
