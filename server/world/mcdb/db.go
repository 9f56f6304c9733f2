// Package mcdb implements a worker.Provider storing chunks in a LevelDB
// database.
package mcdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/storage"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCorrupt is returned when a stored record fails its checksum.
	ErrCorrupt = errors.New("mcdb: checksum mismatch")
	// ErrClosed is returned when using a DB after Close.
	ErrClosed = errors.New("mcdb: database closed")
)

// Config holds the settings of a DB. The zero value is usable.
type Config struct {
	// Log is used for errors that do not surface to the caller. If nil,
	// slog.Default() is used.
	Log *slog.Logger
	// Compression is the zstd level records are compressed at. Defaults to
	// zstd.SpeedDefault.
	Compression zstd.EncoderLevel
	// LDBOptions holds LevelDB specific options. Records are compressed
	// already, so LevelDB compression is disabled unless set here.
	LDBOptions *opt.Options
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Compression == 0 {
		conf.Compression = zstd.SpeedDefault
	}
	if conf.LDBOptions == nil {
		conf.LDBOptions = &opt.Options{Compression: opt.NoCompression}
	}
	return conf
}

// Open opens a DB in the directory passed, creating it if needed.
func (conf Config) Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("mcdb: create directory: %w", err)
	}
	conf = conf.withDefaults()
	ldb, err := leveldb.OpenFile(filepath.Join(dir, "db"), conf.LDBOptions)
	if err != nil {
		return nil, fmt.Errorf("mcdb: open leveldb: %w", err)
	}
	return conf.wrap(ldb)
}

// OpenStorage opens a DB on top of the LevelDB storage passed, such as
// storage.NewMemStorage().
func (conf Config) OpenStorage(stor storage.Storage) (*DB, error) {
	conf = conf.withDefaults()
	ldb, err := leveldb.Open(stor, conf.LDBOptions)
	if err != nil {
		return nil, fmt.Errorf("mcdb: open leveldb: %w", err)
	}
	return conf.wrap(ldb)
}

func (conf Config) wrap(ldb *leveldb.DB) (*DB, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(conf.Compression))
	if err != nil {
		_ = ldb.Close()
		return nil, fmt.Errorf("mcdb: create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = ldb.Close()
		return nil, fmt.Errorf("mcdb: create zstd decoder: %w", err)
	}
	return &DB{conf: conf, ldb: ldb, enc: enc, dec: dec}, nil
}

// DB stores chunks in LevelDB. It is safe for concurrent use.
type DB struct {
	conf Config
	ldb  *leveldb.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Load reads the chunk stored at the position passed. ErrCorrupt is returned
// if the record failed its checksum.
func (db *DB) Load(pos chunk.Pos) (chunk.Chunk, bool, error) {
	data, err := db.ldb.Get(key(pos), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return chunk.Chunk{}, false, nil
	case errors.Is(err, leveldb.ErrClosed):
		return chunk.Chunk{}, false, ErrClosed
	case err != nil:
		return chunk.Chunk{}, false, fmt.Errorf("mcdb: read chunk %v: %w", pos, err)
	}
	c, err := db.decode(pos, data)
	if err != nil {
		return chunk.Chunk{}, false, fmt.Errorf("mcdb: decode chunk %v: %w", pos, err)
	}
	return c, true, nil
}

// Store writes every chunk of the batch in a single LevelDB batch.
func (db *DB) Store(chunks []chunk.Chunk) error {
	batch := new(leveldb.Batch)
	for _, c := range chunks {
		if c.IsZero() {
			continue
		}
		data, err := db.encode(c)
		if err != nil {
			return fmt.Errorf("mcdb: encode chunk %v: %w", c.Pos(), err)
		}
		batch.Put(key(c.Pos()), data)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := db.ldb.Write(batch, nil); err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("mcdb: write batch: %w", err)
	}
	return nil
}

// Delete removes the chunk stored at the position passed.
func (db *DB) Delete(pos chunk.Pos) error {
	return db.ldb.Delete(key(pos), nil)
}

// Positions calls f for every stored chunk position until f returns false.
func (db *DB) Positions(f func(pos chunk.Pos) bool) error {
	it := db.ldb.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		pos, ok := parseKey(it.Key())
		if !ok {
			continue
		}
		if !f(pos) {
			break
		}
	}
	return it.Error()
}

// Close closes the database.
func (db *DB) Close() error {
	db.enc.Close()
	db.dec.Close()
	return db.ldb.Close()
}
