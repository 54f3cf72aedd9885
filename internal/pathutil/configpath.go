// Package pathutil finds and writes configuration files.
package pathutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("pathutil")

// ErrConfigNotFound is returned when no config file exists at any candidate path.
var ErrConfigNotFound = errors.New("config not found")

// ErrConfigExists is returned by WriteConfig when it may not replace an existing file.
var ErrConfigExists = errors.New("config file already exists")

// ConfigLocationType describes a config path's location type.
type ConfigLocationType string

const (
	// WorkingDirLoc represents the default working directory location for a configuration file.
	WorkingDirLoc = ConfigLocationType("WD")

	// HomeLoc represents the default home folder location for a configuration file.
	HomeLoc = ConfigLocationType("HOME")

	// LocalLoc represents the default /usr/local location for a configuration file.
	LocalLoc = ConfigLocationType("LOCAL")
)

// String implements fmt.Stringer for ConfigLocationType.
func (t ConfigLocationType) String() string {
	return string(t)
}

// Set implements pflag.Value for ConfigLocationType.
func (t *ConfigLocationType) Set(s string) error {
	for _, valid := range AllConfigLocationTypes() {
		if ConfigLocationType(s) == valid {
			*t = valid
			return nil
		}
	}
	return fmt.Errorf("invalid config location type %q, valid types: %v", s, AllConfigLocationTypes())
}

// Type implements pflag.Value for ConfigLocationType.
func (t ConfigLocationType) Type() string {
	return "pathutil.ConfigLocationType"
}

// AllConfigLocationTypes returns all valid config location types.
func AllConfigLocationTypes() []ConfigLocationType {
	return []ConfigLocationType{
		WorkingDirLoc,
		HomeLoc,
		LocalLoc,
	}
}

// ConfigPaths contains a map of configuration paths, based on ConfigLocationTypes.
type ConfigPaths map[ConfigLocationType]string

// String implements fmt.Stringer for ConfigPaths.
func (dp ConfigPaths) String() string {
	raw, err := json.MarshalIndent(dp, "", "\t")
	if err != nil {
		return fmt.Sprintf("%v", map[ConfigLocationType]string(dp))
	}
	return string(raw)
}

// Get obtains a path stored under given configuration location type.
func (dp ConfigPaths) Get(cpType ConfigLocationType) (string, bool) {
	path, ok := dp[cpType]
	return path, ok
}

// NodeDefaults returns the default config paths for busnet-node.
func NodeDefaults() ConfigPaths {
	return defaults("busnet-config.json")
}

// HubDefaults returns the default config paths for busnet-hub.
func HubDefaults() ConfigPaths {
	return defaults("busnet-hub.json")
}

func defaults(name string) ConfigPaths {
	paths := make(ConfigPaths)
	if wd, err := os.Getwd(); err == nil {
		paths[WorkingDirLoc] = filepath.Join(wd, name)
	}
	if home, err := homedir.Dir(); err == nil {
		paths[HomeLoc] = filepath.Join(home, ".busnet", name)
	}
	paths[LocalLoc] = filepath.Join("/usr/local/busnet", name)
	return paths
}

// FindConfigPath is used by a service to find a config file path in the following order:
// - From CLI argument.
// - From ENV.
// - From a list of default paths.
// If argsIndex < 0, searching from CLI arguments does not take place.
func FindConfigPath(args []string, argsIndex int, env string, defaults ConfigPaths) (string, error) {
	if argsIndex >= 0 && len(args) > argsIndex {
		path := args[argsIndex]
		log.Infof("using args[%d] as config path: %s", argsIndex, path)
		return Expand(path)
	}
	if env != "" {
		if path, ok := os.LookupEnv(env); ok {
			log.Infof("using $%s as config path: %s", env, path)
			return Expand(path)
		}
	}
	log.Debugf("config path is not explicitly specified, trying default paths...")
	for i, cpType := range AllConfigLocationTypes() {
		path, ok := defaults[cpType]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Debugf("- [%d/%d] '%s' cannot be accessed: %s", i+1, len(defaults), path, err.Error())
		} else {
			log.Debugf("- [%d/%d] '%s' is found", i+1, len(defaults), path)
			log.Infof("using fallback config path: %s", path)
			return path, nil
		}
	}
	return "", errors.Wrapf(ErrConfigNotFound, "searched %s", defaults.String())
}

// Expand replaces a leading ~ in path with the user's home directory.
func Expand(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand %s", path)
	}
	return expanded, nil
}

// IsTOML reports whether path names a TOML file.
func IsTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// WriteConfig is used by config file generators. The file is encoded as
// TOML if output ends in .toml and as indented JSON otherwise. 'replace' is
// true if replacing files is allowed.
func WriteConfig(conf interface{}, output string, replace bool) error {
	output, err := Expand(output)
	if err != nil {
		return err
	}

	var raw []byte
	if IsTOML(output) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(conf); err != nil {
			return errors.Wrap(err, "failed to encode config")
		}
		raw = buf.Bytes()
	} else {
		if raw, err = json.MarshalIndent(conf, "", "\t"); err != nil {
			return errors.Wrap(err, "failed to encode config")
		}
	}

	if _, err := os.Stat(output); !replace && err == nil {
		return errors.Wrapf(ErrConfigExists, "%s", output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	if err := ioutil.WriteFile(output, raw, 0644); err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	log.Infof("Wrote %d bytes to %s", len(raw), output)
	return nil
}
