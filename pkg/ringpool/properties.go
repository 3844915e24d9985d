package ringpool

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseProperties builds a PoolConfig from name/value pairs on top of the defaults.
// Names match the PoolConfig field names case-insensitively (maxActive, MaxActive, maxactive).
// Unknown names and unparsable values are errors.
func ParseProperties(properties map[string]string) (*PoolConfig, error) {

	config := NewPoolConfig()

	// sorted so that errors are deterministic
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := config.Set(name, properties[name]); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// Set assigns one named option from its string form.
func (pc *PoolConfig) Set(name, value string) error {

	value = strings.TrimSpace(value)

	var err error
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "poolname", "name":
		pc.PoolName = value
	case "url":
		pc.URL = value
	case "host":
		pc.Host = value
	case "hosts":
		pc.Hosts = SplitHosts(value)
	case "port":
		pc.Port, err = strconv.Atoi(value)
	case "framed":
		pc.Framed, err = strconv.ParseBool(value)
	case "compressed":
		pc.Compressed, err = strconv.ParseBool(value)
	case "automatichostdiscovery":
		pc.AutomaticHostDiscovery, err = strconv.ParseBool(value)
	case "sockettimeout":
		pc.SocketTimeout, err = strconv.Atoi(value)
	case "initialsize":
		pc.InitialSize, err = strconv.Atoi(value)
	case "maxactive":
		pc.MaxActive, err = strconv.Atoi(value)
	case "maxidle":
		pc.MaxIdle, err = strconv.Atoi(value)
	case "minidle":
		pc.MinIdle, err = strconv.Atoi(value)
	case "maxwait":
		pc.MaxWait, err = strconv.Atoi(value)
	case "testonborrow":
		pc.TestOnBorrow, err = strconv.ParseBool(value)
	case "testonreturn":
		pc.TestOnReturn, err = strconv.ParseBool(value)
	case "testwhileidle":
		pc.TestWhileIdle, err = strconv.ParseBool(value)
	case "testonconnect":
		pc.TestOnConnect, err = strconv.ParseBool(value)
	case "validationinterval":
		pc.ValidationInterval, err = strconv.ParseInt(value, 10, 64)
	case "timebetweenevictionruns", "timebetweenevictionrunsmillis":
		pc.TimeBetweenEvictionRuns, err = strconv.Atoi(value)
	case "minevictableidletime", "minevictableidletimemillis":
		pc.MinEvictableIdleTime, err = strconv.Atoi(value)
	case "removeabandoned":
		pc.RemoveAbandoned, err = strconv.ParseBool(value)
	case "removeabandonedtimeout":
		pc.RemoveAbandonedTimeout, err = strconv.Atoi(value)
	case "logabandoned":
		pc.LogAbandoned, err = strconv.ParseBool(value)
	case "abandonwhenpercentagefull":
		pc.AbandonWhenPercentageFull, err = strconv.Atoi(value)
	case "suspecttimeout":
		pc.SuspectTimeout, err = strconv.Atoi(value)
	case "maxage":
		pc.MaxAge, err = strconv.ParseInt(value, 10, 64)
	case "uselock":
		pc.UseLock, err = strconv.ParseBool(value)
	case "fairqueue":
		pc.FairQueue, err = strconv.ParseBool(value)
	case "failoverpolicy":
		pc.FailoverPolicy, err = ParseFailoverPolicy(value)
	case "hostcyclepolicy":
		pc.HostCyclePolicy, err = ParseHostCyclePolicy(value)
	case "hostretryinterval":
		pc.HostRetryInterval, err = strconv.ParseInt(value, 10, 64)
	default:
		return fmt.Errorf("unknown pool property %q", name)
	}

	if err != nil {
		return fmt.Errorf("invalid value %q for pool property %q: %w", value, name, err)
	}

	return nil
}
