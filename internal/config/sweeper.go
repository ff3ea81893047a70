package config

import "time"

type Sweeper struct {
	Interval  time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`
	BatchSize uint32        `env:"SWEEPER_BATCH_SIZE" envDefault:"100"`
}
