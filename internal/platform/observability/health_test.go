package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestServerHandler(t *testing.T) {
	logger := zerolog.Nop()
	extra := Route{Pattern: "/webhook/test", Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})}

	tests := []struct {
		name   string
		pinger Pinger
		path   string
		want   int
	}{
		{name: "healthz", pinger: stubPinger{}, path: "/healthz", want: http.StatusOK},
		{name: "ready", pinger: stubPinger{}, path: "/readyz", want: http.StatusOK},
		{name: "not ready", pinger: stubPinger{err: errors.New("down")}, path: "/readyz", want: http.StatusServiceUnavailable},
		{name: "metrics", pinger: stubPinger{}, path: "/metrics", want: http.StatusOK},
		{name: "extra route", pinger: stubPinger{}, path: "/webhook/test", want: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.pinger, 0, &logger, extra)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
