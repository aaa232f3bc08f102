package config

import (
	"github.com/zeromicro/go-zero/core/service"

	"github.com/nordkirke/cas-authority/third_party/cache"
	"github.com/nordkirke/cas-authority/third_party/database"
)

// Config is the top-level configuration for the casd daemon, loaded via
// conf.MustLoad from a yaml file. It embeds go-zero's service.ServiceConf
// for the usual Log/Mode/MetricsUrl/CpuThreshold knobs rather than
// rest.RestConf, since this daemon exposes no HTTP surface of its own.
type Config struct {
	service.ServiceConf
	Database database.PostgresConfig
	Redis    cache.RedisConfig
	Sessions SessionsConfig
	Services ServicesConfig
}

// SessionsConfig tunes expiration policy and the background sweeper.
type SessionsConfig struct {
	TicketGrantingTicketTTL   int64 `json:",default=7200"`  // seconds, normal login
	LongTermTicketGrantingTTL int64 `json:",default=1209600"` // seconds, remember-me login
	ServiceTicketIdleTTL      int64 `json:",default=300"`   // seconds; casd does not read this, and STs/PTs have no idle timeout
	SweepInterval             int64 `json:",default=30"`    // seconds between expiration sweeps
	AccessIndexTTL            int64 `json:",default=300"`   // seconds, RedisIndex entry/claim lifetime
}

// ServicesConfig holds the services-registry settings. casd loads the
// registry from Postgres into the in-memory StaticServicesManager once at
// startup and does not reload it afterwards.
type ServicesConfig struct {
	RefreshInterval int64 `json:",default=60"` // seconds; casd does not read this
}
