package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name   string
		result brokersync.SyncResult
		want   int
	}{
		{"ok", brokersync.SyncResult{Status: brokersync.StatusOK}, http.StatusOK},
		{"busy", brokersync.SyncResult{Status: brokersync.StatusRejected, Err: brokersync.ErrBusy}, http.StatusConflict},
		{"config", brokersync.SyncResult{Status: brokersync.StatusRejected, Err: &brokersync.ConfigError{Reason: "disabled"}}, http.StatusBadRequest},
		{"auth", brokersync.SyncResult{Status: brokersync.StatusError, Err: &brokersync.AuthError{Err: errors.New("401")}}, http.StatusUnauthorized},
		{"fetch", brokersync.SyncResult{Status: brokersync.StatusError, Err: &brokersync.FetchError{Stage: "orders", Err: errors.New("x")}}, http.StatusBadGateway},
		{"fetch timeout", brokersync.SyncResult{Status: brokersync.StatusError, Err: &brokersync.FetchError{Stage: "orders", Err: context.DeadlineExceeded}}, http.StatusGatewayTimeout},
		{"persistence", brokersync.SyncResult{Status: brokersync.StatusError, Err: &brokersync.PersistenceError{Err: errors.New("x")}}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusCode(tt.result))
		})
	}
}
