package recorder

import "codeberg.org/mutker/encoderctl/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 64
	defaultBatchTimeout = 5 // seconds
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout int // seconds
}

func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:       dbPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeout <= 0 {
		return errFactory.New(ErrInvalidConfig)
	}
	return nil
}
