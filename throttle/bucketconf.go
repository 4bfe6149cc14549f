package throttle

import (
	"fmt"
	"time"
)

type BucketConf struct {
	Burst     int           `json:"burst"`     // maximum number of tokens in the bucket
	Increment int           `json:"increment"` // how many tokens to add each period
	PeriodStr string        `json:"period"`    // e.g. "1m"
	Period    time.Duration `json:"-"`         // how often to add Increment
}

func (c *BucketConf) Normalize() error {
	if c.PeriodStr != "" {
		d, err := time.ParseDuration(c.PeriodStr)
		if err != nil {
			return fmt.Errorf("throttle period: %w", err)
		}
		c.Period = d
	}
	if c.Burst < 1 {
		return fmt.Errorf("throttle burst must be positive, got %d", c.Burst)
	}
	if c.Increment < 1 {
		c.Increment = 1
	}
	if c.Period <= 0 {
		return fmt.Errorf("throttle period must be positive")
	}
	return nil
}
