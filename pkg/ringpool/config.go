package ringpool

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPort is the node port used when neither the URL nor the config names one.
	DefaultPort = 9160

	defaultMaintenanceInterval = 30 * time.Second
	minMaintenanceInterval     = time.Second
)

// PoolConfig represents settings for creating/configuring a ConnectionPool.
// Durations are plain integers, the unit is noted next to each field.
type PoolConfig struct {
	PoolName               string   `json:"PoolName"`
	URL                    string   `json:"URL"`  // cassandra:thrift://host1;host2[:port]
	Host                   string   `json:"Host"` // ; or , separated host list
	Hosts                  []string `json:"Hosts"`
	Port                   int      `json:"Port"`
	Framed                 bool     `json:"Framed"`
	Compressed             bool     `json:"Compressed"` // zstd frame payloads, needs Framed
	AutomaticHostDiscovery bool     `json:"AutomaticHostDiscovery"`
	SocketTimeout          int      `json:"SocketTimeout"` // ms

	InitialSize int `json:"InitialSize"`
	MaxActive   int `json:"MaxActive"`
	MaxIdle     int `json:"MaxIdle"`
	MinIdle     int `json:"MinIdle"`
	MaxWait     int `json:"MaxWait"` // ms, <= 0 waits forever

	TestOnBorrow       bool  `json:"TestOnBorrow"`
	TestOnReturn       bool  `json:"TestOnReturn"`
	TestWhileIdle      bool  `json:"TestWhileIdle"`
	TestOnConnect      bool  `json:"TestOnConnect"`
	ValidationInterval int64 `json:"ValidationInterval"` // ms

	TimeBetweenEvictionRuns   int   `json:"TimeBetweenEvictionRuns"` // ms
	MinEvictableIdleTime      int   `json:"MinEvictableIdleTime"`    // ms
	RemoveAbandoned           bool  `json:"RemoveAbandoned"`
	RemoveAbandonedTimeout    int   `json:"RemoveAbandonedTimeout"` // s
	LogAbandoned              bool  `json:"LogAbandoned"`
	AbandonWhenPercentageFull int   `json:"AbandonWhenPercentageFull"`
	SuspectTimeout            int   `json:"SuspectTimeout"` // s
	MaxAge                    int64 `json:"MaxAge"`         // ms

	UseLock           bool            `json:"UseLock"`
	FairQueue         bool            `json:"FairQueue"`
	FailoverPolicy    FailoverPolicy  `json:"FailoverPolicy"`
	HostCyclePolicy   HostCyclePolicy `json:"HostCyclePolicy"`
	HostRetryInterval int64           `json:"HostRetryInterval"` // ms
}

// NewPoolConfig returns a PoolConfig holding every default.
func NewPoolConfig() *PoolConfig {
	return &PoolConfig{
		PoolName:                  "ringpool-" + uuid.New().String(),
		Port:                      DefaultPort,
		AutomaticHostDiscovery:    true,
		SocketTimeout:             5000,
		InitialSize:               10,
		MaxActive:                 100,
		MaxIdle:                   100,
		MinIdle:                   10,
		MaxWait:                   30000,
		ValidationInterval:        30000,
		TimeBetweenEvictionRuns:   5000,
		MinEvictableIdleTime:      60000,
		RemoveAbandonedTimeout:    60,
		FairQueue:                 true,
		FailoverPolicy:            OnFailTryAllAvailable,
		HostCyclePolicy:           Random,
		HostRetryInterval:         300000,
		AbandonWhenPercentageFull: 0,
	}
}

// Validate rejects configurations a pool cannot be built from.
func (pc *PoolConfig) Validate() error {

	if pc.MaxActive <= 0 {
		return errors.New("connectionpool maxactive must be greater than 0")
	}

	if pc.InitialSize < 0 || pc.MinIdle < 0 || pc.MaxIdle < 0 {
		return errors.New("connectionpool initialsize, minidle and maxidle can't be negative")
	}

	if pc.URL != "" {
		if _, _, err := ParseURL(pc.URL); err != nil {
			return err
		}
	}

	if len(pc.ConfiguredHosts()) == 0 {
		return errors.New("connectionpool needs at least one host")
	}

	return nil
}

// ConfiguredHosts merges URL, Host and Hosts into one de-duplicated list.
func (pc *PoolConfig) ConfiguredHosts() []string {

	var hosts []string
	seen := make(map[string]struct{})
	add := func(host string) {
		host = strings.TrimSpace(host)
		if host == "" {
			return
		}
		if _, ok := seen[host]; ok {
			return
		}

		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}

	if pc.URL != "" {
		if urlHosts, _, err := ParseURL(pc.URL); err == nil {
			for _, host := range urlHosts {
				add(host)
			}
		}
	}

	for _, host := range SplitHosts(pc.Host) {
		add(host)
	}

	for _, host := range pc.Hosts {
		add(host)
	}

	return hosts
}

// SplitHosts splits a host list on ; or ,.
func SplitHosts(hosts string) []string {
	return strings.FieldsFunc(hosts, func(r rune) bool {
		return r == ';' || r == ','
	})
}

// PoolSweeperEnabled reports whether a maintenance loop has any work to do.
func (pc *PoolConfig) PoolSweeperEnabled() bool {
	return pc.TimeBetweenEvictionRuns > 0 &&
		((pc.RemoveAbandoned && pc.RemoveAbandonedTimeout > 0) ||
			pc.SuspectTimeout > 0 ||
			pc.TestWhileIdle ||
			pc.MinEvictableIdleTime > 0)
}

// clamp fixes size combinations that contradict each other, logging each adjustment.
func (pc *PoolConfig) clamp(logger *slog.Logger) {

	if pc.URL != "" {
		if _, port, explicit, err := parseURL(pc.URL); err == nil && explicit {
			pc.Port = port
		}
	}

	if pc.Port <= 0 {
		pc.Port = DefaultPort
	}

	if pc.AbandonWhenPercentageFull < 0 {
		pc.AbandonWhenPercentageFull = 0
	} else if pc.AbandonWhenPercentageFull > 100 {
		pc.AbandonWhenPercentageFull = 100
	}

	if pc.InitialSize > pc.MaxActive {
		logger.Warn("initialsize is larger than maxactive, clamping", "initialSize", pc.InitialSize, "maxActive", pc.MaxActive)
		pc.InitialSize = pc.MaxActive
	}

	if pc.MinIdle > pc.MaxActive {
		logger.Warn("minidle is larger than maxactive, clamping", "minIdle", pc.MinIdle, "maxActive", pc.MaxActive)
		pc.MinIdle = pc.MaxActive
	}

	if pc.MaxIdle > pc.MaxActive {
		logger.Warn("maxidle is larger than maxactive, clamping", "maxIdle", pc.MaxIdle, "maxActive", pc.MaxActive)
		pc.MaxIdle = pc.MaxActive
	}

	if pc.MaxIdle < pc.MinIdle {
		logger.Warn("maxidle is smaller than minidle, clamping", "maxIdle", pc.MaxIdle, "minIdle", pc.MinIdle)
		pc.MaxIdle = pc.MinIdle
	}
}

func (pc *PoolConfig) socketTimeout() time.Duration {
	return time.Duration(pc.SocketTimeout) * time.Millisecond
}

func (pc *PoolConfig) maxWait() time.Duration {
	return time.Duration(pc.MaxWait) * time.Millisecond
}

func (pc *PoolConfig) abandonTimeout() time.Duration {
	return time.Duration(pc.RemoveAbandonedTimeout) * time.Second
}

func (pc *PoolConfig) suspectTimeout() time.Duration {
	return time.Duration(pc.SuspectTimeout) * time.Second
}

func (pc *PoolConfig) minEvictableIdleTime() time.Duration {
	return time.Duration(pc.MinEvictableIdleTime) * time.Millisecond
}

func (pc *PoolConfig) validationInterval() time.Duration {
	return time.Duration(pc.ValidationInterval) * time.Millisecond
}

func (pc *PoolConfig) maxAge() time.Duration {
	return time.Duration(pc.MaxAge) * time.Millisecond
}

func (pc *PoolConfig) hostRetryInterval() time.Duration {
	return time.Duration(pc.HostRetryInterval) * time.Millisecond
}

// maintenanceInterval falls back to 30s when unset and never goes under a second.
func (pc *PoolConfig) maintenanceInterval() time.Duration {

	interval := time.Duration(pc.TimeBetweenEvictionRuns) * time.Millisecond
	if interval <= 0 {
		return defaultMaintenanceInterval
	}

	if interval < minMaintenanceInterval {
		return minMaintenanceInterval
	}

	return interval
}
