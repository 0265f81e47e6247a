package options

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// ErrMalformedCommand is returned for lines that are not a name:value pair.
var ErrMalformedCommand = errors.New("malformed command")

// Console applies operator overrides of the form name:value to a Store.
type Console struct {
	store *Store
	log   *zap.Logger
}

func NewConsole(store *Store, logger *zap.Logger) *Console {
	return &Console{store: store, log: logger}
}

// Run reads commands until EOF or until ctx is done. Bad lines are reported
// and skipped. ctx is only observed between lines.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, value, err := c.Apply(line)
		if err != nil {
			c.log.Warn("option rejected", zap.String("input", line), zap.Error(err))
			continue
		}
		c.log.Info("option set", zap.String("name", string(name)), zap.Float64("value", value))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read operator input: %w", err)
	}
	return nil
}

// Apply parses a single name:value line and stores it.
func (c *Console) Apply(line string) (Name, float64, error) {
	name, value, err := ParseCommand(line)
	if err != nil {
		return "", 0, err
	}
	if err := c.store.Set(name, value); err != nil {
		return "", 0, err
	}
	return name, value, nil
}

// ParseCommand splits name:value and coerces value to a number.
func ParseCommand(line string) (Name, float64, error) {
	parts := strings.Split(strings.TrimSpace(line), ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("%w: want name:value, got %q", ErrMalformedCommand, line)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", 0, fmt.Errorf("%w: empty name", ErrMalformedCommand)
	}
	value, err := cast.ToFloat64E(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", 0, fmt.Errorf("%w: value %q is not numeric", ErrMalformedCommand, parts[1])
	}
	return Name(key), value, nil
}
