package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/dataq/errors"
)

// CheckFile strictly decodes a config file and returns the keys it sets that
// dataq does not know about (typos such as "llm.timout_seconds"). Viper
// ignores such keys silently.
func CheckFile(configPath string) ([]string, error) {
	var cfg Config
	meta, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", configPath)
	}

	var unknown []string
	for _, key := range meta.Undecoded() {
		unknown = append(unknown, key.String())
	}
	sort.Strings(unknown)
	return unknown, nil
}
