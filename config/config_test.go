package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-stepseq/config"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadFrom_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tempo":{"bpm":90},"strategy":"backAndForth","synthOutput":{"gateMs":50}}`), 0644))

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Tempo.BPM)
	assert.Equal(t, "backAndForth", cfg.Strategy)
	assert.Equal(t, 50*time.Millisecond, cfg.SynthOutput.Gate())
	assert.Equal(t, "seqState", cfg.Store.Key)
	assert.Equal(t, config.StoreFile, cfg.Store.Kind)
}

func TestLoadFrom_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage":    `{`,
		"zero bpm":   `{"tempo":{"bpm":0}}`,
		"redis addr": `{"store":{"kind":"redis","key":"k"}}`,
		"kind":       `{"store":{"kind":"s3","key":"k"}}`,
		"format":     `{"store":{"kind":"file","key":"k","format":"xml"}}`,
		"empty key":  `{"store":{"kind":"file","key":""}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := config.LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := config.DefaultConfig()
	cfg.Tempo.BPM = 140
	cfg.Store = config.StoreConfig{Kind: config.StoreRedis, RedisAddr: "localhost:6379", Key: "live", Format: "yaml"}
	cfg.HTTP.Addr = ":8080"

	require.NoError(t, cfg.SaveTo(path))
	loaded, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
