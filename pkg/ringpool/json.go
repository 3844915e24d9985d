package ringpool

import (
	"os"

	jsoniter "github.com/json-iterator/go"
)

// ConvertJSONFileToConfig opens a file.json and converts it to a PoolConfig.
// Fields missing from the file keep their defaults.
func ConvertJSONFileToConfig(fileNamePath string) (*PoolConfig, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	return ConvertJSONToConfig(byteValue)
}

// ConvertJSONToConfig decodes JSON bytes over a default PoolConfig.
func ConvertJSONToConfig(data []byte) (*PoolConfig, error) {

	config := NewPoolConfig()
	var json = jsoniter.ConfigFastest
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}
