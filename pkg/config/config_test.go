/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/dongleradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissingHost = errors.New("host is required")

type testConfig struct {
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	Debug    bool            `json:"debug"`
	Interval models.Duration `json:"interval"`
	Nested   nestedConfig    `json:"nested"`
}

type nestedConfig struct {
	Name string `json:"name"`
}

func (c *testConfig) Validate() error {
	if c.Host == "" {
		return errMissingHost
	}

	if c.Port == 0 {
		c.Port = 5038
	}

	return nil
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeTempConfig(t, `{
		"host": "asterisk.local",
		"interval": "30s",
		"nested": {"name": "dongle0"}
	}`)

	var cfg testConfig

	loader := NewConfig(nil)
	require.NoError(t, loader.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "asterisk.local", cfg.Host)
	assert.Equal(t, 5038, cfg.Port) // defaulted by Validate
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Interval))
	assert.Equal(t, "dongle0", cfg.Nested.Name)
}

func TestLoadAndValidateRejectsInvalid(t *testing.T) {
	path := writeTempConfig(t, `{"port": 5038}`)

	var cfg testConfig

	loader := NewConfig(nil)
	err := loader.LoadAndValidate(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errMissingHost)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg testConfig

	loader := NewConfig(nil)
	err := loader.LoadAndValidate(context.Background(), "/does/not/exist.json", &cfg)
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("DONGLERADAR_HOST", "pbx.example.org")
	t.Setenv("DONGLERADAR_PORT", "5039")
	t.Setenv("DONGLERADAR_DEBUG", "true")
	t.Setenv("DONGLERADAR_INTERVAL", "45s")
	t.Setenv("DONGLERADAR_NESTED_NAME", "dongle1")

	var cfg testConfig

	loader := NewConfig(nil)
	require.NoError(t, loader.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "pbx.example.org", cfg.Host)
	assert.Equal(t, 5039, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.Interval))
	assert.Equal(t, "dongle1", cfg.Nested.Name)
}

func TestLoadFromEnvConfigJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("DONGLERADAR_CONFIG_JSON", `{"host": "pbx", "port": 5038}`)

	var cfg testConfig

	loader := NewConfig(nil)
	require.NoError(t, loader.LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "pbx", cfg.Host)
}

func TestInvalidConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg testConfig

	loader := NewConfig(nil)
	err := loader.LoadAndValidate(context.Background(), "", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)
}
