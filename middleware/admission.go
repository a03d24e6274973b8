/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net"
	"net/http"

	"github.com/acronis/go-admission/admission"
	"github.com/acronis/go-admission/log"
)

// AdmissionErrCode is an error code that is used in a response body
// if the request is rejected by the middleware because the client is over its rate limit.
const AdmissionErrCode = "tooManyRequests"

// MissingClientKeyErrCode is an error code that is used in a response body
// if no client key could be resolved for the request.
const MissingClientKeyErrCode = "missingClientKey"

// AdmissionLogFieldKey it is the name of the logged field that contains a client key for admission control.
const AdmissionLogFieldKey = "admission_client_key"

const userAgentLogFieldKey = "user_agent"

const headerXForwardedFor = "X-Forwarded-For"

// AdmissionParams contains data that relates to the admission control procedure
// and could be used for rejecting an occurred request.
type AdmissionParams struct {
	ErrDomain          string
	ResponseStatusCode int
	Key                string
}

// AdmissionGetKeyFunc is a function that is called for resolving a client key for admission control.
// Empty key means the request carries no client identity and must be rejected before reaching the controller.
type AdmissionGetKeyFunc func(r *http.Request) (key string, err error)

// AdmissionOnRejectFunc is a function that is called for rejecting HTTP request
// when the client is over its rate limit or no client key could be resolved.
type AdmissionOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params AdmissionParams, next http.Handler, logger log.FieldLogger)

// AdmissionOpts represents an options for the Admission middleware.
type AdmissionOpts struct {
	// GetKey resolves a client key from the request. DefaultAdmissionGetKey is used if not set.
	GetKey AdmissionGetKeyFunc

	// ResponseStatusCode is an HTTP status code for rejected requests. 429 is used if not set.
	ResponseStatusCode int

	// Logger is used for logging rejects. When nil, the logger is taken from the request context
	// (see NewContextWithLogger).
	Logger log.FieldLogger

	// MetricsCollector collects metrics for rejects. May be nil.
	MetricsCollector *MetricsCollector

	OnReject     AdmissionOnRejectFunc
	OnMissingKey AdmissionOnRejectFunc
}

type admissionHandler struct {
	next           http.Handler
	controller     *admission.Controller
	getKey         AdmissionGetKeyFunc
	errDomain      string
	respStatusCode int
	logger         log.FieldLogger
	metrics        *MetricsCollector
	onReject       AdmissionOnRejectFunc
	onMissingKey   AdmissionOnRejectFunc
}

// Admission is a middleware that rejects requests from clients that exceed the controller's rate limit.
func Admission(controller *admission.Controller, errDomain string) func(next http.Handler) http.Handler {
	return AdmissionWithOpts(controller, errDomain, AdmissionOpts{})
}

// AdmissionWithOpts is a configurable version of a middleware that rejects requests
// from clients that exceed the controller's rate limit.
func AdmissionWithOpts(
	controller *admission.Controller, errDomain string, opts AdmissionOpts,
) func(next http.Handler) http.Handler {
	getKey := opts.GetKey
	if getKey == nil {
		getKey = DefaultAdmissionGetKey
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultAdmissionOnReject
	}
	onMissingKey := opts.OnMissingKey
	if onMissingKey == nil {
		onMissingKey = DefaultAdmissionOnMissingKey
	}
	return func(next http.Handler) http.Handler {
		return &admissionHandler{
			next:           next,
			controller:     controller,
			getKey:         getKey,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			logger:         opts.Logger,
			metrics:        opts.MetricsCollector,
			onReject:       onReject,
			onMissingKey:   onMissingKey,
		}
	}
}

func (h *admissionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := h.logger
	if logger == nil {
		logger = GetLoggerFromContext(r.Context())
	}

	key, err := h.getKey(r)
	if err != nil || key == "" {
		if err != nil && logger != nil {
			logger.Error("failed to resolve client key for admission control", log.Error(err))
		}
		h.metrics.incRejects(MetricsRejectReasonMissingClientKey)
		h.onMissingKey(rw, r, AdmissionParams{
			ErrDomain:          h.errDomain,
			ResponseStatusCode: http.StatusBadRequest,
		}, h.next, logger)
		return
	}

	if h.controller.Check(key) {
		h.next.ServeHTTP(rw, r)
		return
	}

	h.metrics.incRejects(MetricsRejectReasonRateLimit)
	h.onReject(rw, r, AdmissionParams{
		ErrDomain:          h.errDomain,
		ResponseStatusCode: h.respStatusCode,
		Key:                key,
	}, h.next, logger)
}

// DefaultAdmissionGetKey resolves a client key for admission control:
// the raw value of the X-Forwarded-For header if it's present and non-empty,
// or the IP part of the request's remote address otherwise.
func DefaultAdmissionGetKey(r *http.Request) (string, error) {
	if key := r.Header.Get(headerXForwardedFor); key != "" {
		return key, nil
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host, nil
	}
	return r.RemoteAddr, nil
}

// DefaultAdmissionOnReject sends a 429-style JSON error response when the client is over its rate limit.
func DefaultAdmissionOnReject(
	rw http.ResponseWriter, r *http.Request, params AdmissionParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(AdmissionLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	apiErr := NewError(params.ErrDomain, AdmissionErrCode, "Too many requests.")
	RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultAdmissionOnMissingKey sends a 400-style JSON error response when no client key could be resolved.
func DefaultAdmissionOnMissingKey(
	rw http.ResponseWriter, r *http.Request, params AdmissionParams, next http.Handler, logger log.FieldLogger,
) {
	apiErr := NewError(params.ErrDomain, MissingClientKeyErrCode, "Client identifier is missing.")
	RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}
