package webmonitor

import "time"

// Config defines the runtime configuration for the status server.
type Config struct {
	Addr              string
	Target            string
	Reference         string
	Interval          time.Duration // sampling interval, reported only
	Cooldown          time.Duration // alert cooldown, reported only
	StatusInterval    time.Duration
	KeepaliveInterval time.Duration
	HistorySize       int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		Target:            "dog",
		Reference:         "couch",
		StatusInterval:    2 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		HistorySize:       8,
	}
}
