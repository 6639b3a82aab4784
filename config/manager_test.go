package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverCfg is a small config block for manager tests.
type serverCfg struct {
	Addr     string `mapstructure:"addr"`
	TickRate int    `mapstructure:"tickRate"`
}

func (c *serverCfg) GetName() string {
	return "server"
}

func (c *serverCfg) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("server: tickRate must be positive")
	}
	return nil
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func newTestManager(t *testing.T) (*configManager, string) {
	t.Helper()
	dir := t.TempDir()
	cm := NewConfigManager().(*configManager)
	cm.SetBasePath(dir)
	t.Cleanup(func() { cm.Close() })
	return cm, dir
}

func TestLoadConfig(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 30\n")

	cfg := &serverCfg{}
	require.NoError(t, cm.LoadConfig("server", cfg))
	assert.Equal(t, "127.0.0.1:9350", cfg.Addr)
	assert.Equal(t, 30, cfg.TickRate)

	got, err := cm.GetConfig("server")
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cm, _ := newTestManager(t)
	assert.Error(t, cm.LoadConfig("server", &serverCfg{}))
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 0\n")
	assert.Error(t, cm.LoadConfig("server", &serverCfg{}))
}

func TestLoadConfigRunsRegisteredValidator(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 30\n")

	cm.RegisterValidator("server", func(c Config) error {
		if c.(*serverCfg).TickRate > 20 {
			return fmt.Errorf("tick rate capped at 20")
		}
		return nil
	})
	assert.Error(t, cm.LoadConfig("server", &serverCfg{}))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 30\n")

	t.Setenv("SERVER_TICKRATE", "60")
	cfg := &serverCfg{}
	require.NoError(t, cm.LoadConfig("server", cfg))
	assert.Equal(t, 60, cfg.TickRate)
}

func TestEnvironmentDirectoryOverride(t *testing.T) {
	cm, dir := newTestManager(t)
	cm.SetEnvironment("staging")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "staging"), 0o755))
	writeConfigFile(t, filepath.Join(dir, "staging"), "server", "addr: staging:1\ntickRate: 10\n")

	cfg := &serverCfg{}
	require.NoError(t, cm.LoadConfig("server", cfg))
	assert.Equal(t, "staging:1", cfg.Addr)
}

func TestGetConfigUnknown(t *testing.T) {
	cm, _ := newTestManager(t)
	_, err := cm.GetConfig("nothing")
	assert.Error(t, err)
}

// changeRecorder captures listener notifications.
type changeRecorder struct {
	names []string
	news  []Config
	olds  []Config
}

func (r *changeRecorder) OnConfigChanged(name string, newCfg, oldCfg Config) error {
	r.names = append(r.names, name)
	r.news = append(r.news, newCfg)
	r.olds = append(r.olds, oldCfg)
	return nil
}

func TestReloadPublishesNewValueAndNotifies(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 30\n")

	cfg := &serverCfg{}
	require.NoError(t, cm.LoadConfig("server", cfg))

	rec := &changeRecorder{}
	cm.AddChangeListener(rec)

	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 60\n")
	cm.reloadConfig("server")

	got, err := cm.GetConfig("server")
	require.NoError(t, err)
	assert.Equal(t, 60, got.(*serverCfg).TickRate)

	require.Len(t, rec.names, 1)
	assert.Equal(t, "server", rec.names[0])
	assert.Equal(t, 60, rec.news[0].(*serverCfg).TickRate)
	assert.Equal(t, 30, rec.olds[0].(*serverCfg).TickRate)
}

func TestReloadKeepsOldValueWhenInvalid(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: 30\n")
	require.NoError(t, cm.LoadConfig("server", &serverCfg{}))

	writeConfigFile(t, dir, "server", "addr: 127.0.0.1:9350\ntickRate: -5\n")
	cm.reloadConfig("server")

	got, err := cm.GetConfig("server")
	require.NoError(t, err)
	assert.Equal(t, 30, got.(*serverCfg).TickRate)
}

func TestReloadHookVetoKeepsOldValue(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "server", "addr: a:1\ntickRate: 30\n")
	require.NoError(t, cm.LoadConfig("server", &serverCfg{}))

	cm.RegisterHook("server", func(oldVal, newVal Config) error {
		if oldVal.(*serverCfg).Addr != newVal.(*serverCfg).Addr {
			return fmt.Errorf("addr cannot change at runtime")
		}
		return nil
	})

	writeConfigFile(t, dir, "server", "addr: b:2\ntickRate: 30\n")
	cm.reloadConfig("server")

	got, _ := cm.GetConfig("server")
	assert.Equal(t, "a:1", got.(*serverCfg).Addr)
}

func TestGetInstanceIsSingleton(t *testing.T) {
	assert.Same(t, GetInstance(), GetInstance())
}
