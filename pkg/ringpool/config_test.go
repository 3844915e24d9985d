package ringpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolConfigDefaults(t *testing.T) {
	config := NewPoolConfig()

	assert.NotEmpty(t, config.PoolName)
	assert.Equal(t, DefaultPort, config.Port)
	assert.Equal(t, 10, config.InitialSize)
	assert.Equal(t, 100, config.MaxActive)
	assert.Equal(t, 100, config.MaxIdle)
	assert.Equal(t, 10, config.MinIdle)
	assert.Equal(t, 30000, config.MaxWait)
	assert.Equal(t, 60, config.RemoveAbandonedTimeout)
	assert.Equal(t, OnFailTryAllAvailable, config.FailoverPolicy)
	assert.Equal(t, Random, config.HostCyclePolicy)
	assert.True(t, config.AutomaticHostDiscovery)
	assert.True(t, config.FairQueue)
}

func TestConfigClamp(t *testing.T) {
	config := NewPoolConfig()
	config.MaxActive = 10
	config.InitialSize = 20
	config.MinIdle = 8
	config.MaxIdle = 5
	config.Port = 0
	config.AbandonWhenPercentageFull = 150

	config.clamp(quietLogger())

	assert.Equal(t, 10, config.InitialSize)
	assert.Equal(t, 8, config.MinIdle)
	assert.Equal(t, 8, config.MaxIdle)
	assert.Equal(t, DefaultPort, config.Port)
	assert.Equal(t, 100, config.AbandonWhenPercentageFull)

	config = NewPoolConfig()
	config.MaxActive = 4
	config.MinIdle = 10
	config.MaxIdle = 20
	config.AbandonWhenPercentageFull = -5
	config.URL = "cassandra:thrift://myhost:9180"

	config.clamp(quietLogger())

	assert.Equal(t, 4, config.MinIdle)
	assert.Equal(t, 4, config.MaxIdle)
	assert.Equal(t, 0, config.AbandonWhenPercentageFull)
	assert.Equal(t, 9180, config.Port)

	// a URL without a port keeps the configured one
	config = NewPoolConfig()
	config.Port = 9999
	config.URL = "cassandra:thrift://myhost"
	config.clamp(quietLogger())
	assert.Equal(t, 9999, config.Port)
}

func TestPoolSweeperEnabled(t *testing.T) {
	config := NewPoolConfig()
	config.MinEvictableIdleTime = 0
	assert.False(t, config.PoolSweeperEnabled())

	config.RemoveAbandoned = true
	assert.True(t, config.PoolSweeperEnabled())

	config.RemoveAbandonedTimeout = 0
	assert.False(t, config.PoolSweeperEnabled())

	config.SuspectTimeout = 5
	assert.True(t, config.PoolSweeperEnabled())

	config.SuspectTimeout = 0
	config.TestWhileIdle = true
	assert.True(t, config.PoolSweeperEnabled())

	config.TimeBetweenEvictionRuns = 0
	assert.False(t, config.PoolSweeperEnabled())
}

func TestParseURL(t *testing.T) {
	hosts, port, err := ParseURL("cassandra:thrift://myhost:9180")
	require.NoError(t, err)
	assert.Equal(t, []string{"myhost"}, hosts)
	assert.Equal(t, 9180, port)

	hosts, port, err = ParseURL("cassandra:thrift://thathost")
	require.NoError(t, err)
	assert.Equal(t, []string{"thathost"}, hosts)
	assert.Equal(t, DefaultPort, port)

	hosts, port, err = ParseURL("CASSANDRA:THRIFT://a;b, c:9000/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, hosts)
	assert.Equal(t, 9000, port)

	for _, url := range []string{
		"",
		"http://myhost:9160",
		"cassandra:thrift://",
		"cassandra:thrift://myhost:abc",
		"cassandra:thrift://myhost:70000",
		"cassandra:thrift://:9160",
	} {
		_, _, err = ParseURL(url)
		assert.Error(t, err, url)
	}
}

func TestConfiguredHosts(t *testing.T) {
	config := NewPoolConfig()
	config.URL = "cassandra:thrift://a;b:9161"
	config.Host = "b, c"
	config.Hosts = []string{"c", "d", " "}

	assert.Equal(t, []string{"a", "b", "c", "d"}, config.ConfiguredHosts())
	assert.NoError(t, config.Validate())

	config = NewPoolConfig()
	assert.Error(t, config.Validate())

	config.Host = "a"
	config.MinIdle = -1
	assert.Error(t, config.Validate())

	config.MinIdle = 0
	config.URL = "jdbc:mysql://a"
	assert.Error(t, config.Validate())
}

func TestParseProperties(t *testing.T) {
	config, err := ParseProperties(map[string]string{
		"name":                          "PropsPool",
		"url":                           "cassandra:thrift://h1;h2:9200",
		"maxActive":                     "7",
		"MaxIdle":                       "6",
		"testonborrow":                  "true",
		"framed":                        "TRUE",
		"failoverPolicy":                "fail_fast",
		"hostCyclePolicy":               "ROUND_ROBIN",
		"timeBetweenEvictionRunsMillis": "2000",
		"minEvictableIdleTimeMillis":    "90000",
		"maxAge":                        "3600000",
	})
	require.NoError(t, err)

	assert.Equal(t, "PropsPool", config.PoolName)
	assert.Equal(t, 7, config.MaxActive)
	assert.Equal(t, 6, config.MaxIdle)
	assert.True(t, config.TestOnBorrow)
	assert.True(t, config.Framed)
	assert.Equal(t, FailFast, config.FailoverPolicy)
	assert.Equal(t, RoundRobin, config.HostCyclePolicy)
	assert.Equal(t, 2000, config.TimeBetweenEvictionRuns)
	assert.Equal(t, 90000, config.MinEvictableIdleTime)
	assert.Equal(t, int64(3600000), config.MaxAge)
	assert.Equal(t, []string{"h1", "h2"}, config.ConfiguredHosts())

	// untouched options keep their defaults
	assert.Equal(t, 30000, config.MaxWait)

	_, err = ParseProperties(map[string]string{"maxActive": "lots"})
	assert.Error(t, err)

	_, err = ParseProperties(map[string]string{"poolSize": "5"})
	assert.Error(t, err)

	_, err = ParseProperties(map[string]string{"failoverPolicy": "RETRY_FOREVER"})
	assert.Error(t, err)
}

func TestPolicyNames(t *testing.T) {
	for _, policy := range []FailoverPolicy{FailFast, OnFailTryOneNextAvailable, OnFailTryAllAvailable} {
		parsed, err := ParseFailoverPolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, parsed)
	}

	for _, policy := range []HostCyclePolicy{Random, RoundRobin} {
		parsed, err := ParseHostCyclePolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, parsed)
	}

	assert.Equal(t, 0, FailFast.Retries())
	assert.Equal(t, 1, OnFailTryOneNextAvailable.Retries())
	assert.Greater(t, OnFailTryAllAvailable.Retries(), 1000)

	_, err := ParseHostCyclePolicy("sticky")
	assert.Error(t, err)
}

const poolJSON = `{
	"PoolName": "JsonPool",
	"Hosts": ["a", "b"],
	"Port": 9170,
	"MaxActive": 5,
	"TestWhileIdle": true,
	"FailoverPolicy": "ON_FAIL_TRY_ONE_NEXT_AVAILABLE",
	"HostCyclePolicy": "round_robin"
}`

func TestConvertJSONToConfig(t *testing.T) {
	config, err := ConvertJSONToConfig([]byte(poolJSON))
	require.NoError(t, err)

	assert.Equal(t, "JsonPool", config.PoolName)
	assert.Equal(t, []string{"a", "b"}, config.Hosts)
	assert.Equal(t, 9170, config.Port)
	assert.Equal(t, 5, config.MaxActive)
	assert.True(t, config.TestWhileIdle)
	assert.Equal(t, OnFailTryOneNextAvailable, config.FailoverPolicy)
	assert.Equal(t, RoundRobin, config.HostCyclePolicy)
	assert.Equal(t, 30000, config.MaxWait)

	_, err = ConvertJSONToConfig([]byte(`{"FailoverPolicy": "SOMETIMES"}`))
	assert.Error(t, err)

	_, err = ConvertJSONToConfig([]byte(`{"MaxActive": `))
	assert.Error(t, err)
}

func TestConvertJSONFileToConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(poolJSON), 0o600))

	config, err := ConvertJSONFileToConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "JsonPool", config.PoolName)

	_, err = ConvertJSONFileToConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
