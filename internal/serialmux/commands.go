package serialmux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/timeutil"
)

// Command kinds understood on the counter link.
const (
	CommandGet   = "GET"
	CommandReset = "RESET"
	CommandSet   = "SET"
)

// ErrUnknownCommand is returned for lines that are not a counter command.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one parsed counter command.
type Command struct {
	Kind    string
	In, Out int // SET only
}

// ParseCommand parses "GET", "RESET" or "SET <in> <out>". Keywords are case
// insensitive and surrounding whitespace is ignored.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	kind := strings.ToUpper(fields[0])
	switch kind {
	case CommandGet, CommandReset:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", kind)
		}
		return Command{Kind: kind}, nil
	case CommandSet:
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("SET needs <in> <out>")
		}
		in, err := parseCounter(fields[1])
		if err != nil {
			return Command{}, err
		}
		out, err := parseCounter(fields[2])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: kind, In: in, Out: out}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
}

func parseCounter(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid counter %q", s)
	}
	return n, nil
}

// CounterService is the counter state commands act on, typically a
// *tracking.Tracker.
type CounterService interface {
	Counters() (in, out int)
	ResetCounters()
	SetCounters(in, out int)
}

// CommandLogger records accepted commands, typically a *db.DB.
type CommandLogger interface {
	LogCommand(ctx context.Context, at time.Time, source, command string) error
}

// CommandHandler executes counter commands and formats replies.
type CommandHandler struct {
	Counters CounterService
	Audit    CommandLogger // optional
	Clock    timeutil.Clock
	Source   string // recorded in the audit log
}

// NewCommandHandler returns a handler for counters auditing to audit, which
// may be nil.
func NewCommandHandler(counters CounterService, audit CommandLogger, source string) *CommandHandler {
	return &CommandHandler{
		Counters: counters,
		Audit:    audit,
		Clock:    timeutil.RealClock{},
		Source:   source,
	}
}

// CountersLine formats the reply carrying the current counters.
func CountersLine(in, out int) string {
	return fmt.Sprintf("COUNTERS %d %d", in, out)
}

// Handle runs one command line and returns the reply to send back. Errors
// are reported in the reply as "ERR <reason>" and also returned.
func (h *CommandHandler) Handle(ctx context.Context, line string) (string, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return "ERR " + err.Error(), err
	}

	switch cmd.Kind {
	case CommandReset:
		h.Counters.ResetCounters()
	case CommandSet:
		h.Counters.SetCounters(cmd.In, cmd.Out)
	}
	in, out := h.Counters.Counters()

	if cmd.Kind != CommandGet && h.Audit != nil {
		clock := h.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		if err := h.Audit.LogCommand(ctx, clock.Now(), h.Source, strings.TrimSpace(line)); err != nil {
			monitoring.Logf("serialmux: audit log failed: %v", err)
		}
	}
	return CountersLine(in, out), nil
}
