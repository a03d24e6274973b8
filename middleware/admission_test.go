/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/admission"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/log/logtest"
)

const testErrDomain = "MyService"

func makeTestController(t *testing.T, limit int) *admission.Controller {
	t.Helper()
	cfg := admission.NewDefaultConfig()
	cfg.Limit = limit
	c, err := admission.NewController(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func makeNext() (next http.HandlerFunc, servedCount *atomic.Int32) {
	servedCount = atomic.NewInt32(0)
	next = func(rw http.ResponseWriter, r *http.Request) {
		servedCount.Inc()
		rw.WriteHeader(http.StatusOK)
	}
	return
}

func decodeErrorResponse(t *testing.T, respRec *httptest.ResponseRecorder) *Error {
	t.Helper()
	require.Equal(t, ContentTypeAppJSON, respRec.Header().Get("Content-Type"))
	var respData ErrorResponseData
	require.NoError(t, json.Unmarshal(respRec.Body.Bytes(), &respData))
	require.NotNil(t, respData.Err)
	require.Equal(t, testErrDomain, respData.Err.Domain)
	return respData.Err
}

func TestAdmissionHandler_ServeHTTP(t *testing.T) {
	sendReq := func(handler http.Handler, remoteAddr string, headers http.Header) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if headers != nil {
			req.Header = headers
		}
		req.RemoteAddr = remoteAddr
		respRec := httptest.NewRecorder()
		handler.ServeHTTP(respRec, req)
		return respRec
	}

	t.Run("allowed until limit, then 429", func(t *testing.T) {
		const limit = 3

		next, servedCount := makeNext()
		handler := Admission(makeTestController(t, limit), testErrDomain)(next)

		for i := 0; i < limit; i++ {
			respRec := sendReq(handler, "192.0.2.1:1234", nil)
			require.Equal(t, http.StatusOK, respRec.Code)
		}
		respRec := sendReq(handler, "192.0.2.1:1234", nil)
		require.Equal(t, http.StatusTooManyRequests, respRec.Code)
		apiErr := decodeErrorResponse(t, respRec)
		require.Equal(t, AdmissionErrCode, apiErr.Code)
		require.Equal(t, limit, int(servedCount.Load()))
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		next, servedCount := makeNext()
		handler := Admission(makeTestController(t, 1), testErrDomain)(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", nil).Code)
		require.Equal(t, http.StatusTooManyRequests, sendReq(handler, "192.0.2.1:5678", nil).Code)
		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.2:1234", nil).Code)
		require.Equal(t, 2, int(servedCount.Load()))
	})

	t.Run("X-Forwarded-For header takes precedence over remote addr", func(t *testing.T) {
		next, _ := makeNext()
		handler := Admission(makeTestController(t, 1), testErrDomain)(next)

		headers := http.Header{headerXForwardedFor: []string{"203.0.113.7"}}
		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", headers).Code)
		// Same client key, even though the remote addr differs.
		require.Equal(t, http.StatusTooManyRequests, sendReq(handler, "192.0.2.99:4321", headers).Code)
		// No header, remote addr is a fresh key.
		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", nil).Code)
	})

	t.Run("400 when no client key can be resolved", func(t *testing.T) {
		next, servedCount := makeNext()
		handler := Admission(makeTestController(t, 1), testErrDomain)(next)

		respRec := sendReq(handler, "", nil)
		require.Equal(t, http.StatusBadRequest, respRec.Code)
		apiErr := decodeErrorResponse(t, respRec)
		require.Equal(t, MissingClientKeyErrCode, apiErr.Code)
		require.Equal(t, 0, int(servedCount.Load()))
	})

	t.Run("custom response status code", func(t *testing.T) {
		next, _ := makeNext()
		handler := AdmissionWithOpts(makeTestController(t, 1), testErrDomain, AdmissionOpts{
			ResponseStatusCode: http.StatusServiceUnavailable,
		})(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", nil).Code)
		require.Equal(t, http.StatusServiceUnavailable, sendReq(handler, "192.0.2.1:1234", nil).Code)
	})

	t.Run("custom get key", func(t *testing.T) {
		next, _ := makeNext()
		handler := AdmissionWithOpts(makeTestController(t, 1), testErrDomain, AdmissionOpts{
			GetKey: func(r *http.Request) (string, error) {
				return r.Header.Get("X-Client-ID"), nil
			},
		})(next)

		headers := http.Header{"X-Client-Id": []string{"client-1"}}
		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", headers).Code)
		require.Equal(t, http.StatusTooManyRequests, sendReq(handler, "192.0.2.2:1234", headers).Code)
		require.Equal(t, http.StatusBadRequest, sendReq(handler, "192.0.2.3:1234", nil).Code)
	})

	t.Run("custom on reject", func(t *testing.T) {
		next, _ := makeNext()
		onRejectCalled := atomic.NewInt32(0)
		handler := AdmissionWithOpts(makeTestController(t, 1), testErrDomain, AdmissionOpts{
			OnReject: func(rw http.ResponseWriter, r *http.Request, params AdmissionParams, _ http.Handler, _ log.FieldLogger) {
				onRejectCalled.Inc()
				require.Equal(t, "192.0.2.1", params.Key)
				rw.WriteHeader(http.StatusTeapot)
			},
		})(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "192.0.2.1:1234", nil).Code)
		require.Equal(t, http.StatusTeapot, sendReq(handler, "192.0.2.1:1234", nil).Code)
		require.Equal(t, 1, int(onRejectCalled.Load()))
	})

	t.Run("metrics are collected", func(t *testing.T) {
		next, _ := makeNext()
		metricsCollector := NewMetricsCollector("")
		handler := AdmissionWithOpts(makeTestController(t, 1), testErrDomain, AdmissionOpts{
			MetricsCollector: metricsCollector,
		})(next)

		sendReq(handler, "192.0.2.1:1234", nil)
		sendReq(handler, "192.0.2.1:1234", nil)
		sendReq(handler, "192.0.2.1:1234", nil)
		sendReq(handler, "", nil)

		require.Equal(t, float64(2), testutil.ToFloat64(
			metricsCollector.RejectsTotal.WithLabelValues(MetricsRejectReasonRateLimit)))
		require.Equal(t, float64(1), testutil.ToFloat64(
			metricsCollector.RejectsTotal.WithLabelValues(MetricsRejectReasonMissingClientKey)))
	})

	t.Run("get key error is rejected with 400 and logged", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		next, servedCount := makeNext()
		handler := AdmissionWithOpts(makeTestController(t, 1), testErrDomain, AdmissionOpts{
			Logger: logRecorder,
			GetKey: func(r *http.Request) (string, error) {
				return "", errors.New("malformed client credentials")
			},
		})(next)

		respRec := sendReq(handler, "192.0.2.1:1234", nil)
		require.Equal(t, http.StatusBadRequest, respRec.Code)
		apiErr := decodeErrorResponse(t, respRec)
		require.Equal(t, MissingClientKeyErrCode, apiErr.Code)
		require.Equal(t, 0, int(servedCount.Load()))

		entry, found := logRecorder.FindEntry("failed to resolve client key for admission control")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
		errField, found := entry.FindField("error")
		require.True(t, found)
		require.EqualError(t, errField.Any.(error), "malformed client credentials")
	})

	t.Run("logger is taken from the request context", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		next, _ := makeNext()
		handler := Admission(makeTestController(t, 1), testErrDomain)(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("User-Agent", "test-agent")
		req = req.WithContext(NewContextWithLogger(req.Context(), logRecorder))

		handler.ServeHTTP(httptest.NewRecorder(), req)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		entry, found := logRecorder.FindEntry("response error")
		require.True(t, found)
		keyField, found := entry.FindField(AdmissionLogFieldKey)
		require.True(t, found)
		require.Equal(t, "192.0.2.1", string(keyField.Bytes))
		uaField, found := entry.FindField(userAgentLogFieldKey)
		require.True(t, found)
		require.Equal(t, "test-agent", string(uaField.Bytes))
	})
}

func TestDefaultAdmissionGetKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		wantKey    string
	}{
		{name: "forwarded header", remoteAddr: "192.0.2.1:1234", xff: "203.0.113.7", wantKey: "203.0.113.7"},
		{name: "forwarded header with multiple addrs", remoteAddr: "192.0.2.1:1234", xff: "203.0.113.7, 10.0.0.1", wantKey: "203.0.113.7, 10.0.0.1"},
		{name: "remote addr with port", remoteAddr: "192.0.2.1:1234", wantKey: "192.0.2.1"},
		{name: "remote addr without port", remoteAddr: "192.0.2.1", wantKey: "192.0.2.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", wantKey: "2001:db8::1"},
		{name: "no key sources", remoteAddr: "", wantKey: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set(headerXForwardedFor, tt.xff)
			}
			key, err := DefaultAdmissionGetKey(req)
			require.NoError(t, err)
			require.Equal(t, tt.wantKey, key)
		})
	}
}
