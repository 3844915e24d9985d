package wire

const (
	opDescribeKeyspaces   = "describe_keyspaces"
	opDescribeRing        = "describe_ring"
	opDescribeClusterName = "describe_cluster_name"
)

// TokenRange is one slice of the token ring and the endpoints replicating it.
type TokenRange struct {
	StartToken string   `json:"StartToken"`
	EndToken   string   `json:"EndToken"`
	Endpoints  []string `json:"Endpoints"`
}

// Topology is what a Node reports about its cluster.
type Topology struct {
	ClusterName string                  `json:"ClusterName"`
	Keyspaces   []string                `json:"Keyspaces"`
	Ring        map[string][]TokenRange `json:"Ring"` // keyspace -> ranges
}

// SingleRangeTopology builds a Topology where every keyspace maps to one range owned by all endpoints.
func SingleRangeTopology(clusterName string, keyspaces []string, endpoints ...string) Topology {

	topology := Topology{
		ClusterName: clusterName,
		Keyspaces:   append([]string{}, keyspaces...),
		Ring:        make(map[string][]TokenRange, len(keyspaces)),
	}

	for _, keyspace := range keyspaces {
		topology.Ring[keyspace] = []TokenRange{
			{
				StartToken: "0",
				EndToken:   "0",
				Endpoints:  append([]string{}, endpoints...),
			},
		}
	}

	return topology
}

type request struct {
	Op       string `json:"Op"`
	Keyspace string `json:"Keyspace,omitempty"`
}

type response struct {
	Error       string       `json:"Error,omitempty"`
	ClusterName string       `json:"ClusterName,omitempty"`
	Keyspaces   []string     `json:"Keyspaces,omitempty"`
	Ring        []TokenRange `json:"Ring,omitempty"`
}
