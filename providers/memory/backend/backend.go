package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/boltmemory"
	"github.com/leofalp/mmchat/providers/memory/filememory"
	"github.com/leofalp/mmchat/providers/memory/pgmemory"
	"github.com/leofalp/mmchat/providers/memory/sqlitememory"
)

// Kind selects the store variant.
type Kind string

const (
	KindFile  Kind = "file"
	KindTable Kind = "table"
	KindBolt  Kind = "bolt"
)

// Table drivers accepted for KindTable.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes which store to open and where.
type Config struct {
	Kind Kind

	// File variant.
	Dir       string
	Extension string

	// Table variant.
	Driver       string
	DSN          string
	TableName    string
	EnsureSchema bool

	// Bolt variant.
	BoltPath string

	Logger *slog.Logger
}

// ErrUnknownKind is returned for an unsupported Kind or Driver.
var ErrUnknownKind = errors.New("backend: unknown store kind")

// ParseKind maps a configuration string to a Kind. Matching ignores case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFile:
		return KindFile, nil
	case KindTable:
		return KindTable, nil
	case KindBolt:
		return KindBolt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open builds the store described by cfg. The returned Closer releases
// connection pools and file handles and is never nil on success.
func Open(ctx context.Context, cfg Config) (memory.Store, io.Closer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case KindFile:
		opts := []filememory.Option{filememory.WithLogger(logger)}
		if cfg.Extension != "" {
			opts = append(opts, filememory.WithExtension(cfg.Extension))
		}
		store, err := filememory.New(cfg.Dir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser, nil

	case KindTable:
		return openTable(ctx, cfg, logger)

	case KindBolt:
		if cfg.BoltPath == "" {
			return nil, nil, fmt.Errorf("backend: bolt store requires a path")
		}
		store, err := boltmemory.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func openTable(ctx context.Context, cfg Config, logger *slog.Logger) (memory.Store, io.Closer, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("backend: table store requires a DSN")
	}

	switch cfg.Driver {
	case DriverPostgres, "":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, &memory.StorageError{Backend: DriverPostgres, Op: "open", Err: err}
		}
		opts := []pgmemory.Option{pgmemory.WithLogger(logger)}
		if cfg.TableName != "" {
			opts = append(opts, pgmemory.WithTableName(cfg.TableName))
		}
		store := pgmemory.New(pool, opts...)
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return store, closerFunc(func() error { pool.Close(); return nil }), nil

	case DriverSQLite:
		db, err := sqlitememory.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		opts := []sqlitememory.Option{sqlitememory.WithLogger(logger)}
		if cfg.TableName != "" {
			opts = append(opts, sqlitememory.WithTableName(cfg.TableName))
		}
		store := sqlitememory.New(db, opts...)
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return store, db, nil

	default:
		return nil, nil, fmt.Errorf("%w: table driver %q", ErrUnknownKind, cfg.Driver)
	}
}
