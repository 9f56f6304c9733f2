package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/mcdb"
	"github.com/df-mc/chunkgen/server/world/schedule"
	"github.com/df-mc/chunkgen/server/world/worker"
	"github.com/klauspost/compress/zstd"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config contains options for starting a chunk generation Server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Provider is used for storing and loading chunks. If left as nil, chunks
	// are kept in memory and are lost when the Server stops. If Provider
	// implements io.Closer, it is closed once the Server stopped.
	Provider worker.Provider
	// Generator runs the generation stages. If nil, the reference terrain
	// generator seeded with Seed is used.
	Generator worker.Generator
	// Seed is the seed of the default generator.
	Seed int64
	// Spawn is the chunk a ticket is placed at when the Server starts.
	Spawn chunk.Pos
	// SpawnRadius is the radius of the spawn ticket. A negative radius
	// disables the spawn ticket.
	SpawnRadius int32
	// Schedule configures the scheduler. Its Levels, Log and Workers.Provider
	// and Workers.Generator fields are filled in by the Server.
	Schedule schedule.Config
	// StatsInterval is the interval at which generation progress is logged.
	// Progress is not logged if zero or lower.
	StatsInterval time.Duration
}

// UserConfig is the user configuration for a chunk generation server. It may
// be serialised to TOML or YAML and can be converted to a Config by calling
// UserConfig.Config().
type UserConfig struct {
	World struct {
		// SaveData controls whether chunks are saved and loaded. If true,
		// the LevelDB provider is used and if false, chunks are only kept in
		// memory.
		SaveData bool
		// Folder is the folder that the data of the world resides in.
		Folder string
		// Seed controls the terrain produced by the default generator.
		Seed int64
		// Height is the height of newly created chunks.
		Height int
		// Compression is the zstd level chunks are stored with. Valid values
		// are "fastest", "default", "better" and "best".
		Compression string
	}
	Generation struct {
		// Readers is the number of goroutines reading chunks from disk.
		Readers int
		// Workers is the number of generation workers. Set to 0 to use the
		// number of CPUs.
		Workers int
		// WriteQueue is the number of save batches that may wait for the disk
		// writer before the scheduler blocks.
		WriteQueue int
		// QueueSlack is the number of generation tasks that may wait for a
		// worker on top of one per worker.
		QueueSlack int
		// HintBonus and RetryBonus lower the priority value of tasks close to
		// a player and of chunks regenerated after a failure.
		HintBonus, RetryBonus int
		// SaveProto controls whether chunks that did not finish generation
		// are saved.
		SaveProto bool
		// ShutdownTimeout bounds how long running generation stages are
		// waited for when stopping, for example "5s".
		ShutdownTimeout string
		// UnloadRetry is the interval at which deferred unloads are retried.
		UnloadRetry string
	}
	Spawn struct {
		// X and Z are the chunk coordinates of the spawn ticket.
		X, Z int32
		// Radius is the radius of fully generated chunks around spawn. Set to
		// -1 to generate nothing until tickets are added.
		Radius int32
	}
	Log struct {
		// Level is the minimum level logged: "debug", "info", "warn" or
		// "error".
		Level string
		// StatsInterval is the interval at which generation progress is
		// logged, for example "10s". Leave empty to disable.
		StatsInterval string
	}
}

// Config converts a UserConfig to a Config, so that it may be used for creating
// a Server. An error is returned if a value is invalid or opening the world
// failed.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	conf := Config{
		Log:         log,
		Seed:        uc.World.Seed,
		Spawn:       chunk.Pos{uc.Spawn.X, uc.Spawn.Z},
		SpawnRadius: uc.Spawn.Radius,
		Schedule: schedule.Config{
			Metrics:      schedule.NewMetrics(),
			HintBonus:    uc.Generation.HintBonus,
			RetryBonus:   uc.Generation.RetryBonus,
			DiscardProto: !uc.Generation.SaveProto,
			Workers: worker.Config{
				Readers:         uc.Generation.Readers,
				Generators:      uc.Generation.Workers,
				WriteQueue:      uc.Generation.WriteQueue,
				GenerationSlack: uc.Generation.QueueSlack,
				Height:          uc.World.Height,
			},
		},
	}
	var err error
	if conf.Schedule.ShutdownTimeout, err = parseDuration(uc.Generation.ShutdownTimeout); err != nil {
		return conf, fmt.Errorf("parse shutdown timeout: %w", err)
	}
	if conf.Schedule.UnloadRetry, err = parseDuration(uc.Generation.UnloadRetry); err != nil {
		return conf, fmt.Errorf("parse unload retry: %w", err)
	}
	if conf.StatsInterval, err = parseDuration(uc.Log.StatsInterval); err != nil {
		return conf, fmt.Errorf("parse stats interval: %w", err)
	}
	level := zstd.SpeedDefault
	if name := strings.TrimSpace(uc.World.Compression); name != "" {
		ok, l := zstd.EncoderLevelFromString(name)
		if !ok {
			return conf, fmt.Errorf("unknown compression level %q", name)
		}
		level = l
	}
	if uc.World.SaveData {
		conf.Provider, err = mcdb.Config{Log: log, Compression: level}.Open(uc.World.Folder)
		if err != nil {
			return conf, fmt.Errorf("create world provider: %w", err)
		}
	}
	return conf, nil
}

// LogLevel returns the slog level of the Log.Level setting, or slog.LevelInfo
// if it is not set.
func (uc UserConfig) LogLevel() (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(uc.Log.Level) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(uc.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level: %w", err)
	}
	return l, nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.World.SaveData = true
	c.World.Folder = "world"
	c.World.Height = chunk.DefaultHeight
	c.World.Compression = "default"
	c.Generation.Readers = 2
	c.Generation.WriteQueue = 500
	c.Generation.QueueSlack = 4
	c.Generation.HintBonus = 100
	c.Generation.RetryBonus = 200
	c.Generation.SaveProto = true
	c.Generation.ShutdownTimeout = "5s"
	c.Generation.UnloadRetry = "1s"
	c.Spawn.Radius = 4
	c.Log.Level = "info"
	c.Log.StatsInterval = "10s"
	return c
}

// ReadConfig reads the user configuration stored in the file at the path
// passed. Files ending in .yaml or .yml are decoded as YAML, anything else as
// TOML. If the file does not exist yet, it is created holding DefaultConfig.
// Settings missing from the file keep their default values.
func ReadConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return c, errors.New("config path must not be empty")
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, WriteConfig(path, c)
		}
		return c, fmt.Errorf("read config: %w", err)
	}
	if len(contents) == 0 {
		return c, nil
	}
	if isYAML(path) {
		err = yaml.Unmarshal(contents, &c)
	} else {
		err = toml.Unmarshal(contents, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteConfig writes the user configuration to the file at the path passed,
// in the format chosen by its extension.
func WriteConfig(path string, c UserConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	var (
		encoded []byte
		err     error
	)
	if isYAML(path) {
		encoded, err = yaml.Marshal(c)
	} else {
		encoded, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
