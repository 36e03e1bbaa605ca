package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/pgbridge/pkg/config"
	"github.com/edgeflare/pgbridge/pkg/httputil"
	mw "github.com/edgeflare/pgbridge/pkg/httputil/middleware"
	"github.com/edgeflare/pgbridge/pkg/metrics"
	"go.uber.org/zap"
)

// Bridge serves every request under the API prefix by handing it to a
// Backend in a single call and shaping the answer.
type Bridge struct {
	cfg     *config.Config
	backend Backend
	logger  *zap.Logger
}

// NewBridge returns a bridge for cfg. cfg is read, never written.
func NewBridge(cfg *config.Config, backend Backend, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{cfg: cfg, backend: backend, logger: logger}
}

// ServeHTTP implements http.Handler. No error escapes: failures become a 500
// with a JSON envelope, and nothing is written until the outcome is known.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := b.handle(r)
	if err != nil {
		b.logFailure(r, err)
		metrics.BridgeErrors.WithLabelValues(errorKind(err)).Inc()
		resp = ErrorResponse(err)
	}
	if err := resp.Write(w); err != nil {
		b.logger.Debug("writing response", zap.Error(err))
	}
}

// handle runs normalize, invoke and shape. A panic anywhere is returned as an
// error.
func (b *Bridge) handle(r *http.Request) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	req, err := NewRequest(r, b.cfg.PathPrefix, b.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	res, err := b.invoke(r.Context(), req)
	if err != nil {
		return nil, err
	}

	return Shape(res, req.Offset()), nil
}

// invoke issues the one backend call for req. A client going away does not
// abort it.
func (b *Bridge) invoke(ctx context.Context, req *Request) (*Result, error) {
	env, err := NewEnvelope(req, b.cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := b.backend.Execute(context.WithoutCancel(ctx), env)
	elapsed := time.Since(start).Seconds()

	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		metrics.BackendDuration.WithLabelValues(metrics.OutcomeRejected).Observe(elapsed)
		res = rejected.Result()
	case err != nil:
		metrics.BackendDuration.WithLabelValues(metrics.OutcomeError).Observe(elapsed)
		return nil, err
	case res == nil:
		metrics.BackendDuration.WithLabelValues(metrics.OutcomeError).Observe(elapsed)
		return nil, fmt.Errorf("%w: empty result", ErrContractViolation)
	default:
		metrics.BackendDuration.WithLabelValues(metrics.OutcomeOK).Observe(elapsed)
	}

	// net/http panics on anything outside three digits
	if !validStatus(res.Status) {
		return nil, fmt.Errorf("%w: status %d", ErrContractViolation, res.Status)
	}
	return res, nil
}

func (b *Bridge) logFailure(r *http.Request, err error) {
	logger := b.logger
	if l, ok := mw.LoggerFromContext(r.Context()); ok {
		logger = l
	}
	reqID, _ := httputil.RequestID(r)
	logger.Error("error handling request",
		zap.String("req_id", reqID),
		zap.String("method", r.Method),
		zap.String("kind", errorKind(err)),
		zap.Error(err),
	)
}

// errorBody is the envelope of every 500 answered by the bridge.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// ErrorResponse converts err into the 500 envelope.
func ErrorResponse(err error) *Response {
	body, _ := json.Marshal(errorBody{
		Error:   http.StatusText(http.StatusInternalServerError),
		Details: err.Error(),
	})
	s := string(body)
	return &Response{
		Status:  http.StatusInternalServerError,
		Headers: map[string]string{HeaderContentType: contentTypeJSON},
		Body:    &s,
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrContractViolation):
		return "contract_violation"
	}
	return "unexpected"
}
