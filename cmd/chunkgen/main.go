// Command chunkgen runs a standalone chunk generation server. It generates the
// chunks around spawn, keeps generating for tickets added at runtime and saves
// every chunk when it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/df-mc/chunkgen/server"
	"github.com/df-mc/chunkgen/server/console"
)

func main() {
	path := flag.String("config", "chunkgen.toml", "path of the configuration file (.toml, .yaml or .yml)")
	flag.Parse()

	uc, err := server.ReadConfig(*path)
	if err != nil {
		slog.Error("read config: " + err.Error())
		os.Exit(1)
	}
	lvl, err := uc.LogLevel()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	conf, err := uc.Config(log)
	if err != nil {
		log.Error("create config: " + err.Error())
		os.Exit(1)
	}
	srv := conf.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if conf.SpawnRadius < 0 {
			return
		}
		start := time.Now()
		l, err := srv.WaitChunk(ctx, conf.Spawn)
		if err != nil {
			return
		}
		l.Release()
		log.Info("Spawn chunk generated.", "X", conf.Spawn[0], "Z", conf.Spawn[1], "took", time.Since(start))
	}()

	go console.New(srv, log).Run(ctx)

	if err := srv.Run(ctx); err != nil {
		log.Error("run server: " + err.Error())
		os.Exit(1)
	}
}
