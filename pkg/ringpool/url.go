package ringpool

import (
	"fmt"
	"strconv"
	"strings"
)

// URLPrefix is the scheme every pool URL starts with.
const URLPrefix = "cassandra:thrift://"

// ParseURL reads cassandra:thrift://host1;host2[:port]. The port defaults to DefaultPort.
func ParseURL(url string) ([]string, int, error) {
	hosts, port, _, err := parseURL(url)
	return hosts, port, err
}

func parseURL(url string) (hosts []string, port int, explicit bool, err error) {

	trimmed := strings.TrimSpace(url)
	if len(trimmed) < len(URLPrefix) || !strings.EqualFold(trimmed[:len(URLPrefix)], URLPrefix) {
		return nil, 0, false, fmt.Errorf("malformed url %q, expected %shost[:port]", url, URLPrefix)
	}

	rest := strings.TrimSuffix(trimmed[len(URLPrefix):], "/")
	port = DefaultPort

	if idx := strings.LastIndexByte(rest, ':'); idx >= 0 {
		parsed, convErr := strconv.Atoi(rest[idx+1:])
		if convErr != nil || parsed <= 0 || parsed > 65535 {
			return nil, 0, false, fmt.Errorf("malformed port in url %q", url)
		}

		port = parsed
		explicit = true
		rest = rest[:idx]
	}

	for _, host := range SplitHosts(rest) {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}

	if len(hosts) == 0 {
		return nil, 0, false, fmt.Errorf("no hosts in url %q", url)
	}

	return hosts, port, explicit, nil
}
