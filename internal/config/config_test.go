package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/config"
)

func withHome(t *testing.T, dir string) {
	t.Helper()
	config.SetConfigDir(dir)
	t.Cleanup(func() { config.SetConfigDir("") })
}

func TestLoadMissingConfigReturnsDefaults(t *testing.T) {
	withHome(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.DefaultDomain)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	withHome(t, t.TempDir())

	require.NoError(t, config.Set("default_domain", "/srv/mxl"))
	v, err := config.Get("default_domain")
	require.NoError(t, err)
	assert.Equal(t, "/srv/mxl", v)
}

func TestSetRejectsUnknownKey(t *testing.T) {
	withHome(t, t.TempDir())
	err := config.Set("nope", "x")
	assert.Error(t, err)
}

func TestResolveDomainPrecedence(t *testing.T) {
	withHome(t, t.TempDir())
	require.NoError(t, config.Set("default_domain", "/from/config"))

	domain, err := config.ResolveDomain("", "")
	require.NoError(t, err)
	assert.Equal(t, "/from/config", domain)

	domain, err = config.ResolveDomain("", "/from/env")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", domain)

	domain, err = config.ResolveDomain("/from/flag", "/from/env")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", domain)
}

func TestResolveDomainFindsMXLRCWalkingUp(t *testing.T) {
	withHome(t, t.TempDir())

	root := t.TempDir()
	require.NoError(t, config.WriteMXLRC(root, "/from/mxlrc"))

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	rcPath, err := config.FindMXLRC(sub)
	require.NoError(t, err)
	domain, err := config.ReadMXLRC(rcPath)
	require.NoError(t, err)
	assert.Equal(t, "/from/mxlrc", domain)
}

func TestLoadDomainOptionsMissingFileYieldsEmpty(t *testing.T) {
	opts, err := config.LoadDomainOptions(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHistoryDurationNs, opts.HistoryDurationNs())
}

func TestLoadDomainOptionsParsesHistoryDuration(t *testing.T) {
	domain := t.TempDir()
	body := `{"urn:x-mxl:option:history_duration/v1.0": 500000000}`
	require.NoError(t, os.WriteFile(filepath.Join(domain, "options.json"), []byte(body), 0o644))

	opts, err := config.LoadDomainOptions(domain)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000_000), opts.HistoryDurationNs())
}
