package netsim

import (
	"errors"
	"fmt"
	"time"
)

const (
	// minPayloadSize is the smallest payload the simulator can generate.
	// Every payload starts with its index so that duplicates can be told
	// apart from repeated content.
	minPayloadSize = 4

	defaultWindowSize    = 8
	defaultTimerInterval = 30 * time.Millisecond
	defaultMessages      = 100
	defaultPayloadSize   = 20
	defaultMeanArrival   = 10 * time.Millisecond
	defaultMeanDelay     = 5 * time.Millisecond
	defaultReorderDelay  = 10 * time.Millisecond
	defaultMaxTime       = time.Hour
)

// Config describes a simulation run: the hosts at both ends of the link, the
// traffic they send and how badly the link between them behaves.
type Config struct {
	WindowSize int `yaml:"window_size" long:"windowsize" description:"The number of frames a host may have outstanding"`

	TimerInterval time.Duration `yaml:"timer_interval" long:"timerinterval" description:"The retransmission timer interval"`

	AdaptiveTimeout bool `yaml:"adaptive_timeout" long:"adaptivetimeout" description:"Derive the retransmission interval from measured response times"`

	Messages int `yaml:"messages" long:"messages" description:"The number of payloads each sending host submits"`

	PayloadSize int `yaml:"payload_size" long:"payloadsize" description:"The size in bytes of every payload"`

	MeanArrival time.Duration `yaml:"mean_arrival" long:"meanarrival" description:"The mean time between two payloads submitted by the same host"`

	OneWay bool `yaml:"one_way" long:"oneway" description:"Only host A submits payloads"`

	MeanDelay time.Duration `yaml:"mean_delay" long:"meandelay" description:"The mean time a frame spends on the link"`

	Loss float64 `yaml:"loss" long:"loss" description:"The probability that a frame is lost"`

	Corrupt float64 `yaml:"corrupt" long:"corrupt" description:"The probability that a bit of a frame is flipped"`

	Reorder float64 `yaml:"reorder" long:"reorder" description:"The probability that a frame is held back by the reorder delay"`

	ReorderDelay time.Duration `yaml:"reorder_delay" long:"reorderdelay" description:"The extra time a held back frame spends on the link"`

	Seed int64 `yaml:"seed" long:"seed" description:"The seed of the pseudo random link and traffic model"`

	MaxTime time.Duration `yaml:"max_time" long:"maxtime" description:"The simulated time after which a run is stopped"`
}

// DefaultConfig returns a configuration for a bidirectional run over a
// lossless link.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:    defaultWindowSize,
		TimerInterval: defaultTimerInterval,
		Messages:      defaultMessages,
		PayloadSize:   defaultPayloadSize,
		MeanArrival:   defaultMeanArrival,
		MeanDelay:     defaultMeanDelay,
		ReorderDelay:  defaultReorderDelay,
		Seed:          1,
		MaxTime:       defaultMaxTime,
	}
}

// Validate checks that the configuration describes a run that can be
// simulated.
func (c *Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d",
			c.WindowSize)
	}

	if c.TimerInterval <= 0 {
		return fmt.Errorf("timer_interval must be positive, got %v",
			c.TimerInterval)
	}

	if c.Messages < 0 {
		return fmt.Errorf("messages must not be negative, got %d",
			c.Messages)
	}

	if c.PayloadSize < minPayloadSize {
		return fmt.Errorf("payload_size must be at least %d, got %d",
			minPayloadSize, c.PayloadSize)
	}

	if c.Messages > 0 && c.MeanArrival <= 0 {
		return errors.New("mean_arrival must be positive")
	}

	if c.MeanDelay < 0 || c.ReorderDelay < 0 {
		return errors.New("link delays must not be negative")
	}

	probabilities := []struct {
		name  string
		value float64
	}{
		{"loss", c.Loss},
		{"corrupt", c.Corrupt},
		{"reorder", c.Reorder},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v",
				p.name, p.value)
		}
	}

	if c.MaxTime <= 0 {
		return fmt.Errorf("max_time must be positive, got %v", c.MaxTime)
	}

	return nil
}
