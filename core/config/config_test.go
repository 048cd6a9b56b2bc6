package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_FallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", getEnv("CONFIG_TEST_UNSET_VAR", "fallback"))
}

func TestGetEnv_ReturnsSetValue(t *testing.T) {
	t.Setenv("CONFIG_TEST_STRING_VAR", "custom")
	assert.Equal(t, "custom", getEnv("CONFIG_TEST_STRING_VAR", "fallback"))
}

func TestGetEnvInt_ParsesValidInt(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT_VAR", "42")
	assert.Equal(t, 42, getEnvInt("CONFIG_TEST_INT_VAR", 7))
}

func TestGetEnvInt_FallsBackOnUnsetOrUnparsable(t *testing.T) {
	assert.Equal(t, 7, getEnvInt("CONFIG_TEST_INT_UNSET", 7))

	t.Setenv("CONFIG_TEST_INT_GARBAGE", "not-a-number")
	assert.Equal(t, 7, getEnvInt("CONFIG_TEST_INT_GARBAGE", 7))
}

func TestGetEnvBool_RecognizesTruthyVariants(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		t.Setenv("CONFIG_TEST_BOOL_VAR", v)
		assert.True(t, getEnvBool("CONFIG_TEST_BOOL_VAR", false), "value %q should be truthy", v)
	}
}

func TestGetEnvBool_FallsBackOnUnsetOrUnrecognized(t *testing.T) {
	assert.False(t, getEnvBool("CONFIG_TEST_BOOL_UNSET", false))

	t.Setenv("CONFIG_TEST_BOOL_GARBAGE", "maybe")
	assert.False(t, getEnvBool("CONFIG_TEST_BOOL_GARBAGE", false))
}

func TestLoadConfig_AppliesDevelopmentDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "v21.0", cfg.CloudAPI.GraphVersion)
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("APP_CORS_ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.App.CorsAllowedOrigins)
}
