package ringpool

import (
	"fmt"
	"math"
	"strings"
)

// FailoverPolicy bounds how many extra hosts a connect attempt may try after a failure.
type FailoverPolicy int

const (
	// OnFailTryAllAvailable keeps trying until every host has been tried.
	OnFailTryAllAvailable FailoverPolicy = iota
	// OnFailTryOneNextAvailable tries exactly one more host.
	OnFailTryOneNextAvailable
	// FailFast gives up on the first failure.
	FailFast
)

// Retries returns the number of failed hosts tolerated before giving up.
func (fp FailoverPolicy) Retries() int {
	switch fp {
	case FailFast:
		return 0
	case OnFailTryOneNextAvailable:
		return 1
	default:
		return math.MaxInt32 - 1
	}
}

func (fp FailoverPolicy) String() string {
	switch fp {
	case FailFast:
		return "FAIL_FAST"
	case OnFailTryOneNextAvailable:
		return "ON_FAIL_TRY_ONE_NEXT_AVAILABLE"
	case OnFailTryAllAvailable:
		return "ON_FAIL_TRY_ALL_AVAILABLE"
	default:
		return fmt.Sprintf("FailoverPolicy(%d)", int(fp))
	}
}

// MarshalText lets the policy appear by name in JSON configs.
func (fp FailoverPolicy) MarshalText() ([]byte, error) {
	return []byte(fp.String()), nil
}

// UnmarshalText parses the policy name.
func (fp *FailoverPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFailoverPolicy(string(text))
	if err != nil {
		return err
	}

	*fp = parsed
	return nil
}

// ParseFailoverPolicy accepts FAIL_FAST, ON_FAIL_TRY_ONE_NEXT_AVAILABLE and ON_FAIL_TRY_ALL_AVAILABLE in any case.
func ParseFailoverPolicy(name string) (FailoverPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "FAIL_FAST":
		return FailFast, nil
	case "ON_FAIL_TRY_ONE_NEXT_AVAILABLE":
		return OnFailTryOneNextAvailable, nil
	case "ON_FAIL_TRY_ALL_AVAILABLE", "":
		return OnFailTryAllAvailable, nil
	default:
		return OnFailTryAllAvailable, fmt.Errorf("unknown failover policy %q", name)
	}
}

// HostCyclePolicy selects the order HostRing.Hosts returns.
type HostCyclePolicy int

const (
	// Random returns a fresh shuffle on every call.
	Random HostCyclePolicy = iota
	// RoundRobin rotates the host list by an advancing offset.
	RoundRobin
)

func (hp HostCyclePolicy) String() string {
	switch hp {
	case Random:
		return "RANDOM"
	case RoundRobin:
		return "ROUND_ROBIN"
	default:
		return fmt.Sprintf("HostCyclePolicy(%d)", int(hp))
	}
}

// MarshalText lets the policy appear by name in JSON configs.
func (hp HostCyclePolicy) MarshalText() ([]byte, error) {
	return []byte(hp.String()), nil
}

// UnmarshalText parses the policy name.
func (hp *HostCyclePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseHostCyclePolicy(string(text))
	if err != nil {
		return err
	}

	*hp = parsed
	return nil
}

// ParseHostCyclePolicy accepts RANDOM and ROUND_ROBIN in any case.
func ParseHostCyclePolicy(name string) (HostCyclePolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RANDOM", "":
		return Random, nil
	case "ROUND_ROBIN", "ROUNDROBIN":
		return RoundRobin, nil
	default:
		return Random, fmt.Errorf("unknown host cycle policy %q", name)
	}
}
