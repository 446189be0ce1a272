/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pulsefit/aithrottle/config"
	"github.com/pulsefit/aithrottle/gemini"
	"github.com/pulsefit/aithrottle/httpclient"
	"github.com/pulsefit/aithrottle/httpserver"
	"github.com/pulsefit/aithrottle/internal/libinfo"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/profserver"
	"github.com/pulsefit/aithrottle/statsstore"
	"github.com/pulsefit/aithrottle/throttle"
)

// envVarsPrefix is the prefix of environment variables, e.g. AITHROTTLE_GEMINI_APIKEY.
const envVarsPrefix = "AITHROTTLE"

type appConfig struct {
	Log        *log.Config
	Limiter    *throttle.Config
	Gemini     *gemini.Config
	HTTPClient *httpclient.Config
	Server     *httpserver.Config
	Redis      *statsstore.Config
	ProfServer *profserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:        log.NewConfig(),
		Limiter:    throttle.NewConfig(),
		Gemini:     gemini.NewConfig(),
		HTTPClient: httpclient.NewConfig(),
		Server:     httpserver.NewConfig(),
		Redis:      statsstore.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// loadAppConfig fills the configuration from defaults, the file (if any) and the environment.
func loadAppConfig(path string) (*appConfig, error) {
	cfg := newAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	var err error
	if path == "" {
		err = loader.Load(cfg.Log, cfg.Limiter, cfg.Gemini, cfg.HTTPClient, cfg.Server, cfg.Redis, cfg.ProfServer)
	} else {
		var dataType config.DataType
		if dataType, err = dataTypeFromPath(path); err != nil {
			return nil, err
		}
		err = loader.LoadFromFile(path, dataType,
			cfg.Log, cfg.Limiter, cfg.Gemini, cfg.HTTPClient, cfg.Server, cfg.Redis, cfg.ProfServer)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Gemini.UserAgent == "" {
		cfg.Gemini.UserAgent = libinfo.UserAgent()
	}
	return cfg, nil
}

func dataTypeFromPath(path string) (config.DataType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return config.DataTypeYAML, nil
	case ".json":
		return config.DataTypeJSON, nil
	}
	return "", fmt.Errorf("unsupported config file extension %q, use .yaml, .yml or .json", filepath.Ext(path))
}
