// Package console implements a line based command source for a chunk
// generation server, reading commands from standard input.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/df-mc/chunkgen/server"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Console provides a simple CLI that reads commands from an io.Reader
// (defaulting to os.Stdin) and executes them on the provided server.
//
// Supported commands:
//
//	stats
//	save
//	relight <x> <z>
//	ticket add <x> <z> <radius>
//	ticket move <id> <x> <z>
//	ticket remove <id>
//	hint <x> <y> <z>
//	hint clear
type Console struct {
	srv    *server.Server
	log    *slog.Logger
	reader io.Reader
	// hint is the owner of the high priority hint set through the console.
	hint uuid.UUID
}

// New returns a Console bound to the provided server. The console reads from
// os.Stdin and writes command output to the supplied logger.
func New(srv *server.Server, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		srv:    srv,
		log:    log,
		reader: os.Stdin,
		hint:   uuid.New(),
	}
}

// WithReader sets a custom reader for the console input. It enables testing the
// console without relying on os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled or the underlying reader reaches EOF.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "err", err)
			}
			return
		}
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "/")
		if line == "" {
			continue
		}
		msg, err := c.Execute(ctx, line)
		if err != nil {
			c.log.Error(err.Error())
			continue
		}
		c.log.Info(msg)
	}
}

var errUsage = errors.New("usage: stats | save | relight <x> <z> | ticket add|move|remove ... | hint <x> <y> <z> | hint clear")

// Execute runs a single command line and returns its output.
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return "", errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch args[0] {
	case "stats":
		st, err := c.srv.Schedule().Stats(ctx)
		if err != nil {
			return "", fmt.Errorf("stats: %w", err)
		}
		return fmt.Sprintf("%d public, %d holders, %d queued, %d in flight, %d waiting, %d pending writes",
			st.Public, st.Holders, st.Queued, st.InFlight, st.Waiting, st.PendingWrites), nil
	case "save":
		if err := c.srv.Save(ctx); err != nil {
			return "", fmt.Errorf("save: %w", err)
		}
		return "Saved every chunk.", nil
	case "relight":
		pos, err := parsePos(args[1:])
		if err != nil {
			return "", err
		}
		if err := c.srv.Schedule().Relight(ctx, pos); err != nil {
			return "", err
		}
		return fmt.Sprintf("Relighting %v.", pos), nil
	case "ticket":
		return c.ticket(args[1:])
	case "hint":
		return c.setHint(args[1:])
	}
	return "", errUsage
}

func (c *Console) ticket(args []string) (string, error) {
	if len(args) == 0 {
		return "", errUsage
	}
	levels := c.srv.Levels()
	switch args[0] {
	case "add":
		if len(args) != 4 {
			return "", errUsage
		}
		pos, err := parsePos(args[1:3])
		if err != nil {
			return "", err
		}
		r, err := strconv.ParseInt(args[3], 10, 32)
		if err != nil || r < 0 {
			return "", fmt.Errorf("invalid radius %q", args[3])
		}
		id := levels.AddTicket(pos, int32(r))
		return fmt.Sprintf("Added ticket %v at %v.", id, pos), nil
	case "move":
		if len(args) != 4 {
			return "", errUsage
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid ticket id: %w", err)
		}
		pos, err := parsePos(args[2:4])
		if err != nil {
			return "", err
		}
		if !levels.MoveTicket(id, pos) {
			return "", fmt.Errorf("no ticket %v", id)
		}
		return fmt.Sprintf("Moved ticket %v to %v.", id, pos), nil
	case "remove":
		if len(args) != 2 {
			return "", errUsage
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid ticket id: %w", err)
		}
		levels.RemoveTicket(id)
		return fmt.Sprintf("Removed ticket %v.", id), nil
	}
	return "", errUsage
}

func (c *Console) setHint(args []string) (string, error) {
	if len(args) == 1 && args[0] == "clear" {
		c.srv.Levels().RemoveHint(c.hint)
		return "Cleared hint.", nil
	}
	if len(args) != 3 {
		return "", errUsage
	}
	var v mgl64.Vec3
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return "", fmt.Errorf("invalid coordinate %q", a)
		}
		v[i] = f
	}
	c.srv.Levels().SetHint(c.hint, v)
	return fmt.Sprintf("Prioritising chunk %v.", chunk.PosFromVec3(v)), nil
}

func parsePos(args []string) (chunk.Pos, error) {
	if len(args) != 2 {
		return chunk.Pos{}, errUsage
	}
	var pos chunk.Pos
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return chunk.Pos{}, fmt.Errorf("invalid chunk coordinate %q", a)
		}
		pos[i] = int32(v)
	}
	return pos, nil
}
