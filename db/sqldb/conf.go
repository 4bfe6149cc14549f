package sqldb

import "time"

type Conf struct {
	Type string `json:"type"` // mysql, pgsql
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	PW   string `json:"pw"`
	DB   string `json:"db"`
	TZ   string `json:"tz"`  // Connection Timezone
	DSN  string `json:"dsn"` // To Overwrite Default DSN

	TablePrefix     string `json:"table_prefix"` // e.g. "wp_"
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxConnLifetime string `json:"max_conn_lifetime"` // time.ParseDuration format
}

// PoolLimits returns max open conns and conn lifetime with defaults applied
func (c *Conf) PoolLimits() (int, time.Duration) {
	maxOpen := c.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	lifetime, err := time.ParseDuration(c.MaxConnLifetime)
	if err != nil || lifetime <= 0 {
		lifetime = 3 * time.Minute
	}
	return maxOpen, lifetime
}
