package api_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/drivescore/internal/adapters/http/api"
	"github.com/okian/drivescore/internal/adapters/repository"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var baseTime = time.Date(2025, 10, 30, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	store *repository.MemoryStore
	svc   *service.Service
	mux   *http.ServeMux
}

func newTestEnv() *testEnv {
	var ids atomic.Int64
	store := repository.NewMemoryStore()
	svc := service.New(store,
		service.WithClock(func() time.Time { return baseTime.Add(20 * time.Second) }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("session-%d", ids.Add(1)) }),
		service.WithWorkerCount(1),
	)
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithRequestTimeout(time.Second)).Register(context.Background(), mux)
	return &testEnv{store: store, svc: svc, mux: mux}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	out := map[string]any{}
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func data(w *httptest.ResponseRecorder) map[string]any {
	d, ok := decode(w)["data"].(map[string]any)
	So(ok, ShouldBeTrue)
	return d
}

func batchBody(n int, speed float64) string {
	parts := make([]string, n)
	for i := range parts {
		ts := baseTime.Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano)
		parts[i] = fmt.Sprintf(`{"timestamp":%q,"speed":%g,"throttle_force":0.3}`, ts, speed)
	}
	return `{"data":[` + strings.Join(parts, ",") + `]}`
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		env := newTestEnv()

		Convey("Then the health endpoint serves metrics", func() {
			w := env.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "# HELP")
		})

		Convey("Then the stats endpoint returns service stats", func() {
			w := env.do(http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			stats := decode(w)
			So(stats, ShouldContainKey, "flushSize")
			So(stats, ShouldContainKey, "queueLength")
		})

		Convey("Then unknown paths are not found", func() {
			w := env.do(http.MethodGet, "/nowhere", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then the wrong method is rejected", func() {
			w := env.do(http.MethodDelete, "/sessions/abc", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a driver starting a session over HTTP", t, func() {
		env := newTestEnv()

		w := env.do(http.MethodPost, "/sessions", `{"user_id":"driver-1","environment_type":"city"}`)
		So(w.Code, ShouldEqual, http.StatusCreated)
		sess := data(w)
		So(sess["id"], ShouldEqual, "session-1")
		So(sess["status"], ShouldEqual, "active")
		So(sess["vehicle_type"], ShouldEqual, "sedan")

		Convey("When the session is read back", func() {
			So(env.do(http.MethodGet, "/sessions/session-1", "").Code, ShouldEqual, http.StatusOK)
			active := env.do(http.MethodGet, "/users/driver-1/active-session", "")
			So(active.Code, ShouldEqual, http.StatusOK)
			So(data(active)["id"], ShouldEqual, "session-1")
		})

		Convey("When telemetry is ingested, queried and the session ended", func() {
			w := env.do(http.MethodPost, "/sessions/session-1/telemetry/batch", batchBody(10, 40))
			So(w.Code, ShouldEqual, http.StatusCreated)
			res := decode(w)
			So(res["status"], ShouldEqual, "inserted")
			So(res["inserted"], ShouldEqual, 10.0)

			ts := baseTime.Add(10 * time.Second).Format(time.RFC3339Nano)
			w = env.do(http.MethodPost, "/sessions/session-1/telemetry", fmt.Sprintf(`{"timestamp":%q,"speed":41}`, ts))
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["status"], ShouldEqual, "buffered")

			list := decode(env.do(http.MethodGet, "/sessions/session-1/telemetry?limit=100", ""))
			So(list["count"], ShouldEqual, 10.0)

			w = env.do(http.MethodPost, "/sessions/session-1/telemetry/flush", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["inserted"], ShouldEqual, 1.0)

			list = decode(env.do(http.MethodGet, "/sessions/session-1/telemetry?limit=5&offset=8", ""))
			So(list["count"], ShouldEqual, 3.0)

			latest := env.do(http.MethodGet, "/sessions/session-1/telemetry/latest?seconds=15", "")
			So(latest.Code, ShouldEqual, http.StatusOK)
			So(decode(latest)["count"], ShouldEqual, 5.0)

			stats := env.do(http.MethodGet, "/sessions/session-1/telemetry/stats", "")
			So(stats.Code, ShouldEqual, http.StatusOK)
			So(data(stats)["max_speed"], ShouldEqual, 41.0)

			behavior := env.do(http.MethodGet, "/sessions/session-1/behavior", "")
			So(behavior.Code, ShouldEqual, http.StatusOK)
			So(data(behavior)["sample_count"], ShouldEqual, 11.0)

			missing := env.do(http.MethodGet, "/sessions/session-1/evaluation", "")
			So(missing.Code, ShouldEqual, http.StatusNotFound)
			So(decode(missing)["code"], ShouldEqual, "evaluation_not_found")

			end := env.do(http.MethodPost, "/sessions/session-1/end", `{"status":"completed"}`)
			So(end.Code, ShouldEqual, http.StatusOK)
			ended := data(end)
			So(ended["session"].(map[string]any)["status"], ShouldEqual, "completed")
			So(ended["evaluation"], ShouldNotBeNil)
			So(decode(end), ShouldNotContainKey, "warning")

			Convey("Then the evaluation and history are served", func() {
				ev := env.do(http.MethodGet, "/sessions/session-1/evaluation", "")
				So(ev.Code, ShouldEqual, http.StatusOK)
				score := data(ev)["total_score"].(float64)
				So(score, ShouldBeBetweenOrEqual, 0.0, 100.0)

				rerun := env.do(http.MethodPost, "/sessions/session-1/evaluation", "")
				So(rerun.Code, ShouldEqual, http.StatusOK)
				So(data(rerun)["total_score"], ShouldEqual, score)

				queued := env.do(http.MethodPost, "/sessions/session-1/evaluation?async=true", "")
				So(queued.Code, ShouldEqual, http.StatusAccepted)
				So(decode(queued)["status"], ShouldEqual, "queued")

				history := decode(env.do(http.MethodGet, "/users/driver-1/sessions?page=1&limit=10", ""))
				So(history["count"], ShouldEqual, 1.0)

				stats := env.do(http.MethodGet, "/users/driver-1/stats?days=7", "")
				So(stats.Code, ShouldEqual, http.StatusOK)
				totals := data(stats)
				So(totals["days"], ShouldEqual, 7.0)
				So(totals["total_sessions"], ShouldEqual, 1.0)
				So(totals["completed_sessions"], ShouldEqual, 1.0)
				So(totals["avg_score"], ShouldEqual, score)
				So(totals["popular_environment"], ShouldEqual, "city")
			})

			Convey("Then the closed session refuses more work", func() {
				w := env.do(http.MethodPost, "/sessions/session-1/telemetry", `{"speed":10}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "invalid_session")

				again := env.do(http.MethodPost, "/sessions/session-1/end", "")
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(decode(again)["code"], ShouldEqual, "invalid_state")

				none := env.do(http.MethodGet, "/users/driver-1/active-session", "")
				So(none.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the same driver starts another session", func() {
			w := env.do(http.MethodPost, "/sessions", `{"user_id":"driver-1","environment_type":"highway","input_device":"wheel"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(data(w)["id"], ShouldEqual, "session-2")

			prior := data(env.do(http.MethodGet, "/sessions/session-1", ""))
			So(prior["status"], ShouldEqual, "aborted")
		})
	})
}

func TestErrorMapping(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		env := newTestEnv()

		cases := []struct {
			name   string
			method string
			path   string
			body   string
			status int
			code   string
		}{
			{"malformed json", http.MethodPost, "/sessions", `{`, http.StatusBadRequest, "bad_request"},
			{"empty body", http.MethodPost, "/sessions", "", http.StatusBadRequest, "bad_request"},
			{"missing user", http.MethodPost, "/sessions", `{"environment_type":"city"}`, http.StatusBadRequest, "invalid_parameter"},
			{"negative stats window", http.MethodGet, "/users/u/stats?days=-3", "", http.StatusBadRequest, "invalid_parameter"},
			{"malformed stats window", http.MethodGet, "/users/u/stats?days=week", "", http.StatusBadRequest, "invalid_parameter"},
			{"unknown environment", http.MethodPost, "/sessions", `{"user_id":"u","environment_type":"moon"}`, http.StatusBadRequest, "invalid_parameter"},
			{"unknown session", http.MethodGet, "/sessions/ghost", "", http.StatusNotFound, "session_not_found"},
			{"ingest to unknown session", http.MethodPost, "/sessions/ghost/telemetry", `{"speed":1}`, http.StatusConflict, "invalid_session"},
			{"empty batch", http.MethodPost, "/sessions/ghost/telemetry/batch", `{"data":[]}`, http.StatusBadRequest, "invalid_parameter"},
			{"bad limit", http.MethodGet, "/sessions/ghost/telemetry?limit=abc", "", http.StatusBadRequest, "invalid_parameter"},
			{"negative window", http.MethodGet, "/sessions/ghost/telemetry/latest?seconds=-1", "", http.StatusBadRequest, "invalid_parameter"},
			{"bad async flag", http.MethodPost, "/sessions/ghost/evaluation?async=maybe", "", http.StatusBadRequest, "bad_request"},
			{"unknown end status", http.MethodPost, "/sessions/ghost/end", `{"status":"paused"}`, http.StatusBadRequest, "invalid_parameter"},
		}
		for _, tc := range cases {
			Convey(tc.name, func() {
				w := env.do(tc.method, tc.path, tc.body)
				So(w.Code, ShouldEqual, tc.status)
				body := decode(w)
				So(body["code"], ShouldEqual, tc.code)
				So(body["message"], ShouldNotBeEmpty)
			})
		}

		Convey("non-JSON bodies are refused", func() {
			req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("user_id=u"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnsupportedMediaType)
		})

		Convey("oversized bodies are refused", func() {
			mux := http.NewServeMux()
			api.NewServer(env.svc, api.WithMaxBodyBytes(16)).Register(context.Background(), mux)
			req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"user_id":"a-rather-long-user-id"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("a closed store surfaces as unavailable", func() {
			_ = env.store.Close()
			w := env.do(http.MethodGet, "/sessions/anything", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(w)["code"], ShouldEqual, "unavailable")
		})
	})
}

func TestLiveCheck(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		env := newTestEnv()

		Convey("When an overspeeding city sample is checked", func() {
			w := env.do(http.MethodPost, "/live-check", `{"environment_type":"city","current_data":{"speed":80}}`)

			Convey("Then the violation is reported with its penalty", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				res := data(w)
				So(res["speed_limit"], ShouldEqual, 50.0)
				So(res["overspeed"], ShouldBeTrue)
				So(res["violations"], ShouldNotBeEmpty)
				So(res["instant_penalty"].(float64), ShouldBeGreaterThan, 0.0)
			})
		})

		Convey("When a clean sample is checked against a session", func() {
			So(env.do(http.MethodPost, "/sessions", `{"user_id":"d","environment_type":"highway"}`).Code, ShouldEqual, http.StatusCreated)
			w := env.do(http.MethodPost, "/live-check", `{"session_id":"session-1","current_data":{"speed":100}}`)

			Convey("Then the session environment sets the limit", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				res := data(w)
				So(res["speed_limit"], ShouldEqual, 120.0)
				So(res["overspeed"], ShouldBeFalse)
				So(res["violations"], ShouldBeEmpty)
			})
		})

		Convey("When neither a session nor an environment is given", func() {
			w := env.do(http.MethodPost, "/live-check", `{"current_data":{"speed":10}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the timeout middleware", t, func() {
		var deadline bool
		h := api.TimeoutMiddleware(func(w http.ResponseWriter, r *http.Request) {
			_, deadline = r.Context().Deadline()
			w.WriteHeader(http.StatusTeapot)
		}, time.Second)

		Convey("Then the handler sees a bounded context", func() {
			w := httptest.NewRecorder()
			api.MetricsMiddleware(h, "teapot")(w, httptest.NewRequest(http.MethodGet, "/", nil))
			So(deadline, ShouldBeTrue)
			So(w.Code, ShouldEqual, http.StatusTeapot)
		})
	})
}
