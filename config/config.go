// Package config loads named test transport definitions via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	testtransport "github.com/nrfta/go-testtransport"
)

// Config lists the transports a test suite needs, keyed by transport name.
type Config struct {
	Transports map[string]TransportConfig `mapstructure:"transports"`
}

// TransportConfig mirrors the arguments of Factory.CreateTransport.
type TransportConfig struct {
	DSN     string         `mapstructure:"dsn"`
	Options map[string]any `mapstructure:"options"`
}

// Load builds a Config from the file at path and TESTTRANSPORT_* variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TESTTRANSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every transport uses the test scheme and has valid flags.
func (c Config) Validate() error {
	for _, name := range c.names() {
		tc := c.Transports[name]
		if tc.DSN == "" {
			return fmt.Errorf("transports.%s.dsn must be set", name)
		}
		if testtransport.SchemeOf(tc.DSN) != testtransport.Scheme {
			return fmt.Errorf("transports.%s.dsn must use the %q scheme", name, testtransport.Scheme)
		}
		if _, err := testtransport.ResolveOptions(tc.DSN, tc.Options); err != nil {
			return fmt.Errorf("transports.%s: %w", name, err)
		}
	}
	return nil
}

// CreateTransports creates every configured transport through f, in name
// order. The map key is used as transport_name.
func (c Config) CreateTransports(f *testtransport.Factory, s testtransport.Serializer) ([]*testtransport.Transport, error) {
	res := make([]*testtransport.Transport, 0, len(c.Transports))
	for _, name := range c.names() {
		tc := c.Transports[name]

		options := make(map[string]any, len(tc.Options)+1)
		for k, v := range tc.Options {
			options[k] = v
		}
		options[testtransport.OptionTransportName] = name

		t, err := f.CreateTransport(tc.DSN, options, s)
		if err != nil {
			return nil, fmt.Errorf("create transport %s: %w", name, err)
		}
		res = append(res, t)
	}

	return res, nil
}

func (c Config) names() []string {
	names := make([]string, 0, len(c.Transports))
	for name := range c.Transports {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
