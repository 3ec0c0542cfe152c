// Package envconf fills configuration structs from the process environment.
//
// Fields are described with caarlos0/env tags:
//
//	type Config struct {
//		Port uint16        `env:"API_PORT" envDefault:"8080"`
//		DSN  string        `env:"PG_DSN,required"`
//		TTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`
//	}
//
// Nested structs without a tag are parsed recursively. Values from an optional
// dotenv file are loaded first and never override variables that are already set.
package envconf

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrInvalidDestination = errors.New("destination must be a non-nil pointer to a struct")
	ErrInvalid            = errors.New("invalid environment configuration")
)

// DefaultFiles are the dotenv files Load looks for when none are given.
var DefaultFiles = []string{".env"}

// Load reads the dotenv files (missing files are ignored) and parses the
// environment into dst.
func Load(dst any, files ...string) error {
	if dst == nil {
		return ErrInvalidDestination
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrInvalidDestination
	}

	if len(files) == 0 {
		files = DefaultFiles
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load dotenv %q: %w", f, err)
		}
	}

	err := env.Parse(dst)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}
