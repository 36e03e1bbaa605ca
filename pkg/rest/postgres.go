package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mitchellh/mapstructure"
)

// handleQuery calls the SQL entry point that parses and executes the request.
// It returns exactly one row.
const handleQuery = `
select body, status, headers, page_total, total_result_set
from rest.handle( row( $1, $2, $3, $4, $5 )::rest.http_request, $6 )`

// Querier is the subset of *pgxpool.Pool (or *pgx.Conn) the backend needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend executes envelopes by calling rest.handle in PostgreSQL.
// Concurrency is whatever the Querier provides; a pool serves requests in
// parallel, a single connection serializes them.
type PostgresBackend struct {
	db Querier
}

// NewPostgresBackend returns a backend running on db.
func NewPostgresBackend(db Querier) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Execute runs env through rest.handle. There are no retries.
func (b *PostgresBackend) Execute(ctx context.Context, env *Envelope) (*Result, error) {
	headers, err := json.Marshal(env.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding headers: %w", err)
	}
	cfg, err := json.Marshal(env.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding call config: %w", err)
	}

	var (
		body                                    *string
		status, respHeaders, pageTotal, totalRS any
	)
	err = b.db.QueryRow(ctx, handleQuery,
		env.Method, env.Path, env.RawQuery, env.Body, string(headers), string(cfg),
	).Scan(&body, &status, &respHeaders, &pageTotal, &totalRS)
	if err != nil {
		return nil, classifyError(err)
	}

	res := &Result{Body: body}
	if n, ok := toInt64(status); ok {
		if !validStatus(int(n)) {
			return nil, fmt.Errorf("%w: status column %d", ErrContractViolation, n)
		}
		res.Status = int(n)
	}
	if n, ok := toInt64(pageTotal); ok {
		res.PageTotal = n
	}
	if n, ok := toInt64(totalRS); ok {
		res.TotalResultSet = &n
	}
	if res.Headers, err = decodeHeaders(respHeaders); err != nil {
		return nil, fmt.Errorf("%w: headers column: %v", ErrContractViolation, err)
	}
	return res, nil
}

// Ping checks that the database answers, when the Querier supports it.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	p, ok := b.db.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func classifyError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: rest.handle returned no row", ErrContractViolation)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return newRejectedError(pgErr)
	}

	var scanErr pgx.ScanArgError
	if errors.As(err, &scanErr) {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

// decodeHeaders accepts a JSON object, an array of single-key objects (the
// response.headers GUC format), or their text encoding.
func decodeHeaders(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil, err
		}
		return decodeHeaders(decoded)
	case []byte:
		return decodeHeaders(string(t))
	case []any:
		out := make(map[string]string)
		for _, item := range t {
			m, err := decodeHeaders(item)
			if err != nil {
				return nil, err
			}
			for k, val := range m {
				out[k] = val
			}
		}
		return out, nil
	}

	out := make(map[string]string)
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toInt64 coerces a decoded column value to an integer. ok is false for NULL
// and anything that is not a finite number.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		return toInt64(string(n))
	case []byte:
		return toInt64(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return floatToInt64(f.Float64)
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
