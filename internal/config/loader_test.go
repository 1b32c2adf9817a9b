package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/podium/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 5)
				convey.So(cfg.SmoothingAlpha, convey.ShouldEqual, 0.3)
				convey.So(cfg.GapPolicy, convey.ShouldEqual, "omit")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			setEnv(map[string]string{
				"PODIUM_ADDR":            ":8080",
				"PODIUM_WINDOW_SIZE":     "3",
				"PODIUM_SMOOTHING_ALPHA": "0.5",
				"PODIUM_GAP_POLICY":      "zero",
				"PODIUM_DB_DRIVER":       "memory",
				"PODIUM_CACHE_TTL":       "90s",
			})

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 3)
				convey.So(cfg.SmoothingAlpha, convey.ShouldEqual, 0.5)
				convey.So(cfg.GapPolicy, convey.ShouldEqual, "zero")
				convey.So(cfg.DBDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.CacheTTL, convey.ShouldEqual, 90*time.Second)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
# forecaster
addr: ":9090"
window_size: 4
default_top_n: 10
max_top_n: 50
breaker_timeout: 5s
cors_allowed_origins: "http://localhost:5173"
`)
			setEnv(map[string]string{"PODIUM_CONFIG": tmpFile})

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 4)
				convey.So(cfg.DefaultTopN, convey.ShouldEqual, 10)
				convey.So(cfg.MaxTopN, convey.ShouldEqual, 50)
				convey.So(cfg.BreakerTimeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.AllowedOrigins(), convey.ShouldResemble, []string{"http://localhost:5173"})
			})

			convey.Convey("Then environment variables override file values", func() {
				setEnv(map[string]string{"PODIUM_WINDOW_SIZE": "7"})
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WindowSize, convey.ShouldEqual, 7)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			})
		})

		convey.Convey("When a .env file is named", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "podium.env")
			convey.So(os.WriteFile(path, []byte("PODIUM_DEFAULT_TOP_N=40\nPODIUM_LOG_LEVEL=debug\n"), 0o600), convey.ShouldBeNil)
			setEnv(map[string]string{
				"PODIUM_ENV_FILE":  path,
				"PODIUM_LOG_LEVEL": "warn",
			})

			cfg, err := config.Load(ctx)

			convey.Convey("Then its values apply without overriding the environment", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DefaultTopN, convey.ShouldEqual, 40)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
			})
		})

		convey.Convey("When the named .env file does not exist", func() {
			setEnv(map[string]string{"PODIUM_ENV_FILE": "/non/existent/podium.env"})
			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, "addr: [unterminated\n")
			setEnv(map[string]string{"PODIUM_CONFIG": tmpFile})

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			setEnv(map[string]string{"PODIUM_CONFIG": "/non/existent/file.yaml"})
			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			setEnv(map[string]string{"PODIUM_WINDOW_SIZE": "not_a_number"})
			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with out-of-range values", func() {
			setEnv(map[string]string{"PODIUM_SMOOTHING_ALPHA": "1.5"})
			cfg, err := config.Load(ctx)

			convey.Convey("Then startup fails validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

var configEnvVars = []string{ //nolint:gochecknoglobals // test fixture
	"PODIUM_CONFIG",
	"PODIUM_ENV_FILE",
	"PODIUM_ADDR",
	"PODIUM_LOG_LEVEL",
	"PODIUM_DB_DRIVER",
	"PODIUM_WINDOW_SIZE",
	"PODIUM_SMOOTHING_ALPHA",
	"PODIUM_DEFAULT_TOP_N",
	"PODIUM_GAP_POLICY",
	"PODIUM_CACHE_TTL",
}

func clearConfigEnvVars() {
	for _, envVar := range configEnvVars {
		_ = os.Unsetenv(envVar)
	}
}

func setEnv(vars map[string]string) {
	for k, v := range vars {
		_ = os.Setenv(k, v)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "podium.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
