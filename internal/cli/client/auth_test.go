package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAuthLogin_InvalidKey(t *testing.T) {
	withTempConfigDir(t)

	err := runAuthLogin("not-a-key", "http://localhost:8080")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key format")
}

func TestRunAuthLogin_SavesConfig(t *testing.T) {
	withTempConfigDir(t)

	key := "frg_" + repeatHex(64)
	require.NoError(t, runAuthLogin(key, "http://localhost:9090"))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, key, config.APIKey)
	assert.Equal(t, "http://localhost:9090", config.APIURL)
}

func TestRunAuthLogout_ClearsConfig(t *testing.T) {
	withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "frg_" + repeatHex(64)}))
	require.NoError(t, runAuthLogout())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestMaskAPIKey(t *testing.T) {
	key := "frg_" + repeatHex(64)
	masked := maskAPIKey(key)

	assert.Equal(t, "frg_aaa...aaaa", masked)
	assert.NotContains(t, masked, key[8:60])

	assert.Equal(t, "***", maskAPIKey("short"))
}
