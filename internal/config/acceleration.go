package config

import "time"

// Acceleration configures the read-through cache placed in front of the
// backing store for reads. An empty Endpoint disables it.
type Acceleration struct {
	Endpoint  string        `env:"ACCELERATION_ENDPOINT"`
	Region    string        `env:"AWS_REGION" envDefault:"us-east-1"`
	Password  string        `env:"ACCELERATION_PASSWORD"`
	DB        int           `env:"ACCELERATION_DB" envDefault:"0"`
	PoolSize  int           `env:"ACCELERATION_POOL_SIZE" envDefault:"50"`
	Timeout   time.Duration `env:"ACCELERATION_TIMEOUT" envDefault:"5s"`
	TTL       time.Duration `env:"ACCELERATION_TTL" envDefault:"5m"`
	KeyPrefix string        `env:"ACCELERATION_KEY_PREFIX" envDefault:"catalog"`
}

// Configured reports whether an acceleration endpoint is set. It says nothing
// about whether the cache is reachable.
func (a Acceleration) Configured() bool {
	return a.Endpoint != ""
}
