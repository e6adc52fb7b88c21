package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/dosewatch/internal/adapters/http/api"
	"github.com/okian/dosewatch/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

type mockStats struct {
	stats map[string]interface{}
}

func (m *mockStats) GetStats() map[string]interface{} {
	return m.stats
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a new API server", t, func() {
		stats := &mockStats{stats: map[string]interface{}{"started": true, "cycles": 3}}
		router := api.NewServer(stats).Router()

		Convey("When requesting /healthz without checks", func() {
			rec := get(router, "/healthz")

			Convey("Then it reports ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")

				var body map[string]interface{}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["status"], ShouldEqual, "ok")
			})
		})

		Convey("When requesting /stats", func() {
			rec := get(router, "/stats")

			Convey("Then it returns the provider's stats", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var body map[string]interface{}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
				So(body["cycles"], ShouldEqual, 3.0)
			})
		})

		Convey("When requesting /metrics after traffic", func() {
			_ = get(router, "/healthz")
			metrics.RecordCycle(metrics.OutcomeOK, 12)
			rec := get(router, "/metrics")

			Convey("Then the custom registry is exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "dosewatch_engine_cycles_total")
				So(rec.Body.String(), ShouldContainSubstring, "dosewatch_engine_http_requests_total")
			})
		})

		Convey("When requesting an unknown route", func() {
			rec := get(router, "/medications")

			Convey("Then it is not found", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When posting to /stats", func() {
			req := httptest.NewRequest(http.MethodPost, "/stats", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Convey("Then the method is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestHealthHandler_Checks(t *testing.T) {
	Convey("Given health checks for postgres and redis", t, func() {
		redisErr := errors.New("dial tcp: connection refused")
		checks := []api.Check{
			{Name: "postgres", Probe: func(context.Context) error { return nil }},
			{Name: "redis", Probe: func(context.Context) error { return redisErr }},
		}
		router := api.NewServer(&mockStats{}, checks...).Router()

		Convey("When one dependency is down", func() {
			rec := get(router, "/healthz")

			Convey("Then the service reports degraded with 503", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)

				var body struct {
					Status string            `json:"status"`
					Checks map[string]string `json:"checks"`
				}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body.Status, ShouldEqual, "degraded")
				So(body.Checks["postgres"], ShouldEqual, "ok")
				So(body.Checks["redis"], ShouldEqual, redisErr.Error())
			})

			Convey("Then the failure is counted as a dependency outage", func() {
				out := get(router, "/metrics").Body.String()
				So(out, ShouldContainSubstring, `dosewatch_engine_http_errors_total{endpoint="healthz",error_type="dependency_down",method="GET",severity="critical"}`)
			})
		})
	})
}

func TestStatsHandler_NoProvider(t *testing.T) {
	Convey("Given a stats handler without a provider", t, func() {
		h := api.NewStatsHandler(nil)
		rec := httptest.NewRecorder()
		h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		Convey("Then it answers 503", func() {
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestMetricsMiddleware_Unavailable(t *testing.T) {
	Convey("Given /stats answering 503", t, func() {
		h := api.MetricsMiddleware(api.NewStatsHandler(nil).HandleStats, "stats")
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		Convey("Then it is counted as the engine being unavailable", func() {
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			out := get(api.NewServer(&mockStats{}).Router(), "/metrics").Body.String()
			So(out, ShouldContainSubstring, `dosewatch_engine_http_errors_total{endpoint="stats",error_type="engine_unavailable",method="GET",severity="high"}`)
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler wrapped by the metrics middleware", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}, "boom")

		Convey("When it fails", func() {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

			Convey("Then the response passes through and the error is counted", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				So(rec.Body.String(), ShouldEqual, "boom")

				out := get(api.NewServer(&mockStats{}).Router(), "/metrics").Body.String()
				So(out, ShouldContainSubstring, `dosewatch_engine_http_errors_total{endpoint="boom",error_type="server_error",method="GET",severity="high"}`)
			})
		})
	})
}
