// Package backend assembles the store the web process runs on: SQLite or
// memory, optionally wrapped so every write is published as a snapshot.
package backend

import (
	"fmt"
	"strings"

	"penny/internal/config"
	"penny/internal/store"
)

type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Kinds lists the supported backends.
func Kinds() []Kind { return []Kind{KindMemory, KindSQLite} }

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want one of %v)", s, Kinds())
}

type Config struct {
	Kind       Kind
	SQLitePath string
	// Publishing is on when AMQPURL is set.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("backend: nil app config")
	}
	kind, err := ParseKind(c.DataBackend)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Kind:         kind,
		SQLitePath:   c.SQLiteDBPath,
		AMQPURL:      c.AMQPURL,
		AMQPExchange: c.AMQPExchange,
		AMQPQueue:    c.AMQPQueue,
	}, nil
}

func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Kind == KindSQLite && c.SQLitePath == "" {
		return fmt.Errorf("backend: sqlite needs a database path")
	}
	return nil
}

// Result is an opened backend. Close releases everything it holds and may be
// called once.
type Result struct {
	Store      store.Store
	Publishing bool
	Close      func() error
}
