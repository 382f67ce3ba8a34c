/*
 * MIT License
 *
 * Copyright (c) 2024 The cgiserver authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package srvconfig is the configuration-file reader collaborator: it
// loads the file at the path it is given (cmd/cgiserver defaults to
// server.conf next to the executable) and validates the result before
// the server core ever sees it.
package srvconfig

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/arqtic/cgiserver/internal/srverr"
)

const (
	errLoad srverr.Code = srverr.MinPkgConfig + iota
	errValidate
)

func init() {
	srverr.Register(errLoad, "unable to read server configuration file")
	srverr.Register(errValidate, "server configuration is not valid")
}

// Mode selects one of the three concurrency disciplines spec.md §4.2
// requires.
type Mode string

const (
	ModeIterative Mode = "iterative"
	ModeReactive  Mode = "reactive"
	ModePool      Mode = "pool"
)

// Config is the fully validated, immutable-after-load ServerConfig
// entity of spec.md §3.
type Config struct {
	ServerRoot      string `mapstructure:"server_root"      validate:"required,dir"`
	ServerSignature string `mapstructure:"server_signature"  validate:"required"`
	LogPath         string `mapstructure:"log_path"          validate:"required"`
	MaxClients      int    `mapstructure:"max_clients"       validate:"required,min=1"`
	Port            int    `mapstructure:"listen_port"       validate:"required,min=1,max=65535"`
	Mode            Mode   `mapstructure:"server_mode"       validate:"required,oneof=iterative reactive pool"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
}

// Load reads path (any format viper supports: a flat key=value text
// file compatible with the original C reader, or TOML/YAML/JSON
// selected by extension) and returns a validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if ext := filepath.Ext(path); ext == "" || ext == ".conf" {
		v.SetConfigType("properties")
	}

	v.SetDefault("max_clients", 1)
	v.SetDefault("server_mode", string(ModeIterative))

	if err := v.ReadInConfig(); err != nil {
		return nil, srverr.Wrap(errLoad, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, srverr.Wrap(errLoad, err)
	}

	root, err := filepath.Abs(cfg.ServerRoot)
	if err != nil {
		return nil, srverr.Wrap(errLoad, err)
	}
	cfg.ServerRoot = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate re-checks every mandatory field. Load already calls this;
// it is exported so callers merging configuration dynamically (e.g.
// a future reload hook) can validate before swapping it in.
func (c *Config) Validate() error {
	val := validator.New()

	if err := val.Struct(c); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return srverr.Wrap(errValidate, err)
		}

		out := srverr.Wrap(errValidate, nil)
		for _, fe := range err.(validator.ValidationErrors) {
			out.Parent = fmt.Errorf("field %q fails constraint %q", fe.Field(), fe.ActualTag())
			break
		}

		return out
	}

	return nil
}
