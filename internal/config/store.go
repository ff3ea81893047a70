package config

import (
	"fmt"
	"strings"
	"time"
)

// Store configures the direct handle to the backing store.
//
// Table is deliberately not required at parse time: a missing table is
// reported on every request instead of preventing startup.
type Store struct {
	Driver           StoreDriver   `env:"STORE_DRIVER" envDefault:"postgres"`
	Table            string        `env:"TABLE_NAME"`
	Region           string        `env:"AWS_REGION" envDefault:"us-east-1"`
	MaxRetries       int           `env:"STORE_MAX_RETRIES" envDefault:"3"`
	ConnectTimeout   time.Duration `env:"STORE_CONNECT_TIMEOUT" envDefault:"3s"`
	RequestTimeout   time.Duration `env:"STORE_REQUEST_TIMEOUT" envDefault:"5s"`
	DynamoDBEndpoint string        `env:"DYNAMODB_ENDPOINT"`
}

// StoreDriver selects the backing store implementation.
type StoreDriver uint8

const (
	StoreDriverPostgres StoreDriver = iota
	StoreDriverDynamoDB
	StoreDriverMemory
)

// String returns the string representation of the store driver.
func (d StoreDriver) String() string {
	return []string{"postgres", "dynamodb", "memory"}[d]
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *StoreDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "postgres":
		*d = StoreDriverPostgres
	case "dynamodb":
		*d = StoreDriverDynamoDB
	case "memory":
		*d = StoreDriverMemory
	default:
		return fmt.Errorf("unknown store driver: %s", text)
	}
	return nil
}

func (d StoreDriver) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
