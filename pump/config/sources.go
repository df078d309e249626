/*
DESCRIPTION
  sources.go provides loading of configuration variables from TOML files and
  the environment, for application with Config.Update.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of environment variables read by FromEnv.
const EnvPrefix = "hevcplay"

// ParseTOML returns the top level keys of the TOML document data as
// configuration variables. Keys are variable names, e.g. Width = 1920.
// Tables and arrays are not permitted.
func ParseTOML(data []byte) (map[string]string, error) {
	var doc map[string]interface{}
	err := toml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("could not parse TOML: %w", err)
	}

	vars := make(map[string]string, len(doc))
	for k, v := range doc {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("variable %s: tables and arrays are not supported", k)
		}
		vars[k] = fmt.Sprint(v)
	}
	return vars, nil
}

// LoadTOML reads the TOML file at path and returns its variables.
func LoadTOML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return ParseTOML(data)
}

// envVars holds the environment variables read by FromEnv. Any variable may
// be given in HEVCPLAY_VARS as comma separated Name:value pairs.
type envVars struct {
	InputPath      string            `envconfig:"INPUT_PATH"`
	InputFormat    string            `envconfig:"INPUT_FORMAT"`
	Decoder        string            `envconfig:"DECODER"`
	Surface        string            `envconfig:"SURFACE"`
	OutputPath     string            `envconfig:"OUTPUT_PATH"`
	Logging        string            `envconfig:"LOGGING"`
	MetricsAddress string            `envconfig:"METRICS_ADDRESS"`
	Vars           map[string]string `envconfig:"VARS"`
}

// FromEnv returns configuration variables set in the environment with the
// EnvPrefix prefix, e.g. HEVCPLAY_INPUT_PATH.
func FromEnv() (map[string]string, error) {
	var e envVars
	err := envconfig.Process(EnvPrefix, &e)
	if err != nil {
		return nil, fmt.Errorf("could not process environment: %w", err)
	}

	vars := make(map[string]string, len(e.Vars))
	for k, v := range e.Vars {
		vars[k] = v
	}
	for k, v := range map[string]string{
		KeyInputPath:      e.InputPath,
		KeyInputFormat:    e.InputFormat,
		KeyDecoder:        e.Decoder,
		KeySurface:        e.Surface,
		KeyOutputPath:     e.OutputPath,
		KeyLogging:        e.Logging,
		KeyMetricsAddress: e.MetricsAddress,
	} {
		if v != "" {
			vars[k] = v
		}
	}
	return vars, nil
}
