package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application wiring", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.DBDriver = "sqlite"
		cfg.DBDSN = filepath.Join(t.TempDir(), "podium.db")
		log := logger.Nop()

		convey.Convey("When the store is built", func() {
			store, closeCache, err := buildStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.Reset(func() {
				closeCache()
				_ = store.Close()
			})

			convey.Convey("Then it accepts records through the breaker", func() {
				err := store.UpsertRecords(ctx, model.KindCountry, []model.MedalRecord{
					{Entity: "Norway", Year: 2018, Season: model.SeasonWinter, Gold: 14, Silver: 14, Bronze: 11},
					{Entity: "Norway", Year: 2022, Season: model.SeasonWinter, Gold: 16, Silver: 8, Bronze: 13},
				})
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("And the HTTP stack serves forecasts from it", func() {
					svc, err := buildService(cfg, store, log)
					convey.So(err, convey.ShouldBeNil)
					convey.So(svc.Start(ctx), convey.ShouldBeNil)

					h := buildHandler(ctx, cfg, svc, log)
					req := httptest.NewRequest(http.MethodGet, "/api/predictions/countries/norway?year=2026&season=winter", http.NoBody)
					w := httptest.NewRecorder()
					h.ServeHTTP(w, req)

					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
					convey.So(w.Body.String(), convey.ShouldContainSubstring, `"entity":"Norway"`)
					convey.So(w.Body.String(), convey.ShouldContainSubstring, `"gold":15`)

					w = httptest.NewRecorder()
					h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				})
			})
		})

		convey.Convey("When redis is configured but unreachable", func() {
			cfg.RedisAddr = "127.0.0.1:1"
			store, closeCache, err := buildStore(ctx, cfg, log)

			convey.Convey("Then the store is still usable without the cache", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Ping(ctx), convey.ShouldBeNil)
				closeCache()
				_ = store.Close()
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.DBDriver = "oracle"
			_, _, err := buildStore(ctx, cfg, log)

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(strings.Contains(err.Error(), "open datastore"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the gap policy is unknown", func() {
			cfg.GapPolicy = "interpolate"
			_, err := buildService(cfg, nil, log)

			convey.Convey("Then the service is not built", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given an invalid configuration", t, func() {
		_ = os.Setenv("PODIUM_SMOOTHING_ALPHA", "2")
		convey.Reset(func() { _ = os.Unsetenv("PODIUM_SMOOTHING_ALPHA") })
		convey.So(logger.InitWithWriter(new(strings.Builder)), convey.ShouldBeNil)

		convey.Convey("Then run refuses to start", func() {
			err := run(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "load config")
		})
	})

	convey.Convey("Given a memory store and a cancelled context", t, func() {
		_ = os.Setenv("PODIUM_DB_DRIVER", "memory")
		_ = os.Setenv("PODIUM_ADDR", "127.0.0.1:0")
		convey.Reset(func() {
			_ = os.Unsetenv("PODIUM_DB_DRIVER")
			_ = os.Unsetenv("PODIUM_ADDR")
		})
		convey.So(logger.InitWithWriter(new(strings.Builder)), convey.ShouldBeNil)

		convey.Convey("Then run starts and shuts down cleanly", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			convey.So(run(ctx), convey.ShouldBeNil)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When testing system metrics update", func() {
			convey.So(func() {
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
		})
	})
}
