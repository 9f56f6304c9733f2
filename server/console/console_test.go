package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/chunkgen/server"
	"github.com/df-mc/chunkgen/server/world/chunk"
)

// syncBuffer is a bytes.Buffer safe for use by a logger and a test at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newServer(t *testing.T) *server.Server {
	t.Helper()
	srv := server.Config{
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		SpawnRadius: 0,
	}.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func TestConsoleRunsCommands(t *testing.T) {
	srv := newServer(t)
	out := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(out, nil))

	input := strings.NewReader("ticket add 10 10 0\n\n/stats\nbogus\nhint 40 64 40\nhint clear\n")
	New(srv, log).WithReader(input).Run(context.Background())

	got := out.String()
	for _, want := range []string{"Added ticket", "public", "usage:", "Prioritising chunk (2, 2)", "Cleared hint."} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected console output to contain %q, got:\n%v", want, got)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	l, err := srv.WaitChunk(ctx, chunk.Pos{10, 10})
	if err != nil {
		t.Fatalf("wait for ticket chunk: %v", err)
	}
	l.Release()
}

func TestConsoleRelightAndSave(t *testing.T) {
	srv := newServer(t)
	c := New(srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l, err := srv.WaitChunk(ctx, chunk.Pos{})
	if err != nil {
		t.Fatalf("wait for spawn: %v", err)
	}
	l.Release()

	if _, err := c.Execute(ctx, "relight 0 0"); err != nil {
		t.Fatalf("relight: %v", err)
	}
	if _, err := c.Execute(ctx, "relight 0"); err == nil {
		t.Fatalf("expected relight without z to fail")
	}
	if _, err := c.Execute(ctx, "save"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := c.Execute(ctx, "ticket remove not-a-uuid"); err == nil {
		t.Fatalf("expected an invalid ticket id to fail")
	}
	if _, err := c.Execute(ctx, "ticket move "+srv.SpawnTicket().String()+" 1 1"); err != nil {
		t.Fatalf("move spawn ticket: %v", err)
	}
}
