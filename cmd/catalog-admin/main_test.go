package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/catalog-api/config"
)

func execute(t *testing.T, load func() (config.AppConfig, error), args ...string) (string, error) {
	t.Helper()
	a := &app{load: load}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func staticConfig() (config.AppConfig, error) {
	cfg := config.AppConfig{Services: "http"}
	cfg.Sanitize()
	return cfg, nil
}

func TestRootCmd_ListsCommands(t *testing.T) {
	out, err := execute(t, staticConfig, "--help")
	require.NoError(t, err)
	for _, name := range []string{"migrate", "seed", "cache"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, staticConfig, "cache", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "flush")
	assert.Contains(t, out, "warm")
}

func TestRootCmd_ConfigError(t *testing.T) {
	_, err := execute(t, func() (config.AppConfig, error) {
		return config.AppConfig{}, errors.New("bad env")
	}, "migrate")
	require.ErrorContains(t, err, "load config: bad env")
}

func TestMigrateCmd_RejectsNonPositiveTimeout(t *testing.T) {
	_, err := execute(t, staticConfig, "migrate", "--timeout", "0s")
	require.ErrorContains(t, err, "--timeout")
}

func TestSeedFlags(t *testing.T) {
	_, err := execute(t, staticConfig, "seed", "--count", "0")
	require.ErrorContains(t, err, "--count")

	_, err = execute(t, staticConfig, "seed", "--merchants", "-1")
	require.ErrorContains(t, err, "--merchants")

	opts, err := seedFlags{count: 50, merchants: 2, batchSize: 10, seed: 9}.options()
	require.NoError(t, err)
	assert.Equal(t, 50, opts.Count)
	assert.Equal(t, 2, opts.Merchants)
	assert.Equal(t, 10, opts.BatchSize)
	assert.Equal(t, uint64(9), opts.Seed)
}

func TestHasRedisConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RedisConfig
		want bool
	}{
		{"nil", nil, false},
		{"empty", &config.RedisConfig{}, false},
		{"direct", &config.RedisConfig{URI: "localhost:6379"}, true},
		{"cluster nodes", &config.RedisConfig{UseCluster: true, ClusterNodes: []string{"r1:6379"}}, true},
		{"sentinel without nodes", &config.RedisConfig{UseSentinel: true, URI: "ignored"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRedisConfig(tt.cfg))
		})
	}
}

func TestInfraClose_Nil(t *testing.T) {
	var in *infra
	require.NoError(t, in.Close())
	require.NoError(t, (&infra{}).Close())
}
