package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gdbc/internal/cli/command"
	httpclient "gdbc/internal/cli/http"
	"gdbc/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	prompt = "gdbc> "

	programStatusHeader = "X-Program-Status"
	programExited       = "exited"
)

// LineReader is the part of readline.Instance the session uses.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

// Options tunes a Session.
type Options struct {
	StatePath    string
	PrettyJSON   bool
	PollInterval time.Duration
}

// Session holds REPL state.
type Session struct {
	client   *httpclient.Client
	commands map[string]command.Command
	state    *state.SessionState
	opts     Options
	in       LineReader
	out      io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.SessionState, in LineReader, out io.Writer, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Session{
		client:   client,
		commands: commands,
		state:    st,
		opts:     opts,
		in:       in,
		out:      out,
	}
}

// Completer builds tab completion for the registry and system commands.
func Completer(commands map[string]command.Command) *readline.PrefixCompleter {
	actions := map[string][]readline.PrefixCompleterInterface{}
	var services []string
	for _, key := range command.Keys(commands) {
		cmd := commands[key]
		if _, ok := actions[cmd.Service]; !ok {
			services = append(services, cmd.Service)
		}
		actions[cmd.Service] = append(actions[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(services)+6)
	for _, service := range services {
		items = append(items, readline.PcItem(service, actions[service]...))
	}
	items = append(items,
		readline.PcItem("watch"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("poll")),
		readline.PcItem("show", readline.PcItem("config"), readline.PcItem("last")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context) {
	s.in.SetPrompt(prompt)
	for {
		line, err := s.in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && strings.TrimSpace(line) != "" {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, readline.ErrInterrupt) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		handled, exit := s.handleSystemCommand(ctx, line)
		if exit {
			s.printLine("bye")
			return
		}
		if handled {
			continue
		}

		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(ctx context.Context, line string) (handled, exit bool) {
	switch line {
	case "exit", "quit":
		return true, true
	case "help":
		s.printHelp()
		return true, false
	}
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch head {
	case "set":
		s.handleSet(rest)
	case "show":
		s.handleShow(rest)
	case "watch":
		if err := s.handleWatch(ctx, rest); err != nil {
			s.printLine("error: %v", err)
		}
	default:
		return false, false
	}
	return true, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|poll <value>")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:10010")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout", "poll":
		if len(parts) < 2 {
			s.printLine("usage: set %s 10s", parts[0])
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil || dur <= 0 {
			s.printLine("invalid duration: %s", parts[1])
			return
		}
		if parts[0] == "timeout" {
			s.client.SetTimeout(dur)
		} else {
			s.opts.PollInterval = dur
		}
		s.printLine("%s set to %s", parts[0], dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "last":
		if s.state.LastPID == nil {
			s.printLine("last: <none>")
			return
		}
		s.printLine("last: pid=%d file=%s started=%s", *s.state.LastPID, s.state.LastFile, s.state.StartedAt.Format(time.RFC3339))
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("poll: %s", s.opts.PollInterval)
		s.printLine("statePath: %s", s.opts.StatePath)
	default:
		s.printLine("usage: show config|last")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := parseParams(tokens[2:])
	if err != nil {
		return err
	}
	if err := command.Resolve(cmd, params); err != nil {
		return err
	}
	s.applyLastPID(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.updateState(cmd, params, resp)
	return nil
}

func parseParams(tokens []string) (command.Params, error) {
	params := command.Params{}
	for _, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	return params, nil
}

// applyLastPID fills pid from the remembered program when omitted.
func (s *Session) applyLastPID(cmd command.Command, params command.Params) {
	if s.state.LastPID == nil || params.Has("pid") {
		return
	}
	for _, field := range cmd.Fields {
		if field.Name == "pid" {
			params.Set("pid", strconv.Itoa(*s.state.LastPID))
			return
		}
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(label string) (string, error) {
	s.in.SetPrompt(label + ": ")
	defer s.in.SetPrompt(prompt)
	line, err := s.in.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if resp.StatusCode == http.StatusNoContent && resp.Headers.Get(programStatusHeader) == programExited {
		s.printLine("program exited")
		return
	}
	if len(resp.Body) == 0 {
		return
	}
	if s.opts.PrettyJSON {
		var formatted bytes.Buffer
		if err := json.Indent(&formatted, resp.Body, "", "  "); err == nil {
			s.printLine("%s", formatted.String())
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

// updateState remembers started programs and forgets finished ones.
func (s *Session) updateState(cmd command.Command, params command.Params, resp httpclient.ResponseInfo) {
	changed := false
	switch {
	case cmd.Service == "run" && resp.StatusCode == http.StatusOK:
		var body struct {
			PID *int `json:"pid"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil || body.PID == nil {
			return
		}
		s.state.Remember(*body.PID, params.Get("file"), time.Now())
		changed = true
	case cmd.Key() == "proc stop" && resp.StatusCode == http.StatusOK,
		cmd.Key() == "proc poll" && resp.Headers.Get(programStatusHeader) == programExited:
		if pid, err := command.ParseInt(params.Get("pid")); err == nil {
			s.state.Forget(pid)
			changed = true
		}
	}
	if changed && s.opts.StatePath != "" {
		if err := state.Save(s.opts.StatePath, *s.state); err != nil {
			s.printLine("save session state failed: %v", err)
		}
	}
}

// handleWatch polls /program and streams output until the program exits,
// the server rejects the pid or the user interrupts.
func (s *Session) handleWatch(ctx context.Context, args string) error {
	tokens, err := shlex.Split(args)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	params, err := parseParams(tokens)
	if err != nil {
		return err
	}
	cmd := s.commands["proc poll"]
	s.applyLastPID(cmd, params)
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	for {
		resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
		if err != nil {
			if ctx.Err() != nil {
				s.printLine("watch interrupted")
				return nil
			}
			return err
		}
		switch resp.StatusCode {
		case http.StatusOK:
			var body struct {
				Output string `json:"output"`
			}
			if err := json.Unmarshal(resp.Body, &body); err != nil {
				return fmt.Errorf("decode output failed: %w", err)
			}
			_, _ = io.WriteString(s.out, body.Output)
			continue
		case http.StatusNoContent:
			if resp.Headers.Get(programStatusHeader) == programExited {
				s.printLine("program exited")
				s.updateState(cmd, params, resp)
				return nil
			}
		default:
			s.renderResponse(resp)
			return nil
		}

		select {
		case <-ctx.Done():
			s.printLine("watch interrupted")
			return nil
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | watch [pid=N] | set base|timeout|poll | show config|last")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %s", s.commands[key].Usage)
	}
	s.printLine("pid defaults to the last program started in this session")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
