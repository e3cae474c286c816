// Package config loads rowpage server configuration from a YAML file.
package config

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/itsatony/go-cuserr"
)

const (
	ErrCodeConfigRead   = "ROWPAGE_CONFIG_READ"
	ErrCodeConfigDecode = "ROWPAGE_CONFIG_DECODE"
)

// Server holds HTTP listener settings for cmd/server.
type Server struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Templates points at the directory of component templates to load.
type Templates struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Database describes the backing store queries are run against.
type Database struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite3" or "duckdb"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// Config is the root configuration document for cmd/server.
type Config struct {
	Server    Server    `mapstructure:"server" yaml:"server"`
	Templates Templates `mapstructure:"templates" yaml:"templates"`
	Database  Database  `mapstructure:"database" yaml:"database"`
}

func defaults() Config {
	return Config{
		Server:    Server{Host: "0.0.0.0", Port: 8080},
		Templates: Templates{Dir: "templates"},
		Database:  Database{Driver: "sqlite3", DSN: "rowpage.db"},
	}
}

// Load reads a YAML config file, decoding it over top of the package
// defaults so a document only needs to override what it cares about.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeConfigRead, "read config file").WithMetadata("path", path)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeConfigDecode, "parse config yaml").WithMetadata("path", path)
	}

	cfg := defaults()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeConfigDecode, "build config decoder")
	}
	if err := dec.Decode(doc); err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeConfigDecode, "decode config document").WithMetadata("path", path)
	}

	return &cfg, nil
}
