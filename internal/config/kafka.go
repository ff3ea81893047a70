package config

// Kafka configures the optional change feed. An empty address list disables it.
type Kafka struct {
	Addresses    []string `env:"KAFKA_ADDRESSES" envSeparator:","`
	Group        string   `env:"KAFKA_GROUP" envDefault:"versioned-catalog"`
	ChangesTopic string   `env:"KAFKA_CHANGES_TOPIC" envDefault:"product.changed"`
}

// Enabled reports whether at least one broker address is configured.
func (k Kafka) Enabled() bool {
	return len(k.Addresses) > 0
}
