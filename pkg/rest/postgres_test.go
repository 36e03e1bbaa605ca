package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/edgeflare/pgbridge/internal/testutil/pgtest"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow mimics pgx scanning of body into **string and the rest into *any.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case **string:
			if r.values[i] == nil {
				*d = nil
				continue
			}
			s, ok := r.values[i].(string)
			if !ok {
				return pgx.ScanArgError{ColumnIndex: i, Err: errors.New("not a string")}
			}
			*d = &s
		case *any:
			*d = r.values[i]
		default:
			return fmt.Errorf("unexpected destination %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	row   fakeRow
	calls int
	sql   string
	args  []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	q.sql = sql
	q.args = args
	return q.row
}

func testEnvelope() *Envelope {
	return &Envelope{
		Method:   http.MethodGet,
		Path:     "Orders",
		RawQuery: "select=OrderID&order=OrderDate.desc",
		Headers:  map[string]string{"accept": "application/json"},
		Config:   CallConfig{Schema: "public", PathPrefix: "/rest/v1/", MaxRows: 10, Schemas: "public"},
	}
}

func TestPostgresBackendExecute(t *testing.T) {
	t.Run("decodes the row", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{
			`[{"OrderID":10248}]`,
			int32(200),
			map[string]any{"Content-Profile": "public"},
			int64(1),
			int64(830),
		}}}

		res, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		require.NoError(t, err)

		require.NotNil(t, res.Body)
		assert.Equal(t, `[{"OrderID":10248}]`, *res.Body)
		assert.Equal(t, 200, res.Status)
		assert.Equal(t, map[string]string{"Content-Profile": "public"}, res.Headers)
		assert.Equal(t, int64(1), res.PageTotal)
		require.NotNil(t, res.TotalResultSet)
		assert.Equal(t, int64(830), *res.TotalResultSet)
	})

	t.Run("passes the envelope in one call", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{nil, nil, nil, nil, nil}}}
		env := testEnvelope()
		env.Body = []byte(`{"a":1}`)

		_, err := NewPostgresBackend(q).Execute(context.Background(), env)
		require.NoError(t, err)

		assert.Equal(t, 1, q.calls)
		assert.Contains(t, q.sql, "rest.handle")
		require.Len(t, q.args, 6)
		assert.Equal(t, "GET", q.args[0])
		assert.Equal(t, "Orders", q.args[1])
		assert.Equal(t, "select=OrderID&order=OrderDate.desc", q.args[2])
		assert.Equal(t, []byte(`{"a":1}`), q.args[3])
		assert.JSONEq(t, `{"accept":"application/json"}`, q.args[4].(string))

		var cfg map[string]any
		require.NoError(t, json.Unmarshal([]byte(q.args[5].(string)), &cfg))
		assert.Equal(t, "public", cfg["schema"])
		assert.Equal(t, "/rest/v1/", cfg["path_prefix"])
		assert.Equal(t, float64(10), cfg["max_rows"])
		assert.Contains(t, cfg, "custom_relations")
	})

	t.Run("null columns", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{nil, nil, nil, nil, nil}}}

		res, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		require.NoError(t, err)

		assert.Nil(t, res.Body)
		assert.Zero(t, res.Status)
		assert.Nil(t, res.Headers)
		assert.Zero(t, res.PageTotal)
		assert.Nil(t, res.TotalResultSet, "a NULL total means not counted")
	})

	t.Run("coerces loosely typed columns", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{
			"[]",
			"201",
			`[{"Location":"/Categories?CategoryID=eq.9"},{"X-Count":3}]`,
			"not a number",
			mustNumeric(t, "42"),
		}}}

		res, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		require.NoError(t, err)

		assert.Equal(t, 201, res.Status)
		assert.Zero(t, res.PageTotal)
		assert.Equal(t, map[string]string{"Location": "/Categories?CategoryID=eq.9", "X-Count": "3"}, res.Headers)
		require.NotNil(t, res.TotalResultSet)
		assert.Equal(t, int64(42), *res.TotalResultSet)
	})

	t.Run("status out of range", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{"[]", int32(1000), nil, int64(0), nil}}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("no row", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("undecodable headers", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{"[]", int32(200), true, int64(0), nil}}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("scan failure", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []any{42, nil, nil, nil, nil}}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("connection failure", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("unexpected EOF", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: io.ErrUnexpectedEOF}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("raised error is a rejection", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: &pgconn.PgError{
			Code:    "42501",
			Message: `permission denied for table "Orders"`,
			Hint:    "grant select",
		}}}

		_, err := NewPostgresBackend(q).Execute(context.Background(), testEnvelope())

		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusForbidden, rejected.Status)
		assert.JSONEq(t, `{"code":"42501","message":"permission denied for table \"Orders\"","details":null,"hint":"grant select"}`, rejected.Body)
	})
}

func mustNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	require.NoError(t, n.Scan(s))
	return n
}

func TestStatusForSQLState(t *testing.T) {
	tests := map[string]int{
		"23505": http.StatusConflict,
		"23503": http.StatusConflict,
		"23502": http.StatusBadRequest,
		"22P02": http.StatusBadRequest,
		"42P01": http.StatusNotFound,
		"42883": http.StatusNotFound,
		"42501": http.StatusForbidden,
		"P0001": http.StatusBadRequest,
		"08006": http.StatusServiceUnavailable,
		"57014": http.StatusServiceUnavailable,
		"XX000": http.StatusInternalServerError,
		"PT402": http.StatusPaymentRequired,
		"PTxyz": http.StatusBadRequest,
		"":      http.StatusInternalServerError,
	}

	for code, want := range tests {
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, want, statusForSQLState(code))
		})
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{nil, 0, false},
		{int16(3), 3, true},
		{int32(200), 200, true},
		{int64(37), 37, true},
		{float64(12.9), 12, true},
		{json.Number("15"), 15, true},
		{"404", 404, true},
		{" 7 ", 7, true},
		{"1.5", 1, true},
		{"abc", 0, false},
		{[]byte("9"), 9, true},
		{true, 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T(%v)", tt.in, tt.in), func(t *testing.T) {
			got, ok := toInt64(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPostgresBackendLive runs against a database with a minimal rest.handle.
func TestPostgresBackendLive(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)

	pgtest.Exec(ctx, t, pool, `create schema if not exists rest`)
	pgtest.Exec(ctx, t, pool, `do $$ begin
		if not exists (select 1 from pg_type where typname = 'http_request' and typnamespace = 'rest'::regnamespace) then
			create type rest.http_request as (method text, path text, query text, body bytea, headers json);
		end if;
	end $$`)
	pgtest.Exec(ctx, t, pool, `create or replace function rest.handle(req rest.http_request, config json)
		returns table (body text, status int, headers json, page_total int, total_result_set bigint)
		language plpgsql as $$
		begin
			if req.path = 'missing' then
				raise exception 'relation "missing" does not exist' using errcode = '42P01';
			end if;
			return query select
				json_build_object('path', req.path, 'query', req.query, 'schema', config->>'schema')::text,
				200,
				json_build_object('x-method', req.method),
				1,
				null::bigint;
		end $$`)

	backend := NewPostgresBackend(pool)
	require.NoError(t, backend.Ping(ctx))

	res, err := backend.Execute(ctx, testEnvelope())
	require.NoError(t, err)
	require.NotNil(t, res.Body)
	assert.JSONEq(t, `{"path":"Orders","query":"select=OrderID&order=OrderDate.desc","schema":"public"}`, *res.Body)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "GET", res.Headers["x-method"])
	assert.Equal(t, int64(1), res.PageTotal)
	assert.Nil(t, res.TotalResultSet)

	env := testEnvelope()
	env.Path = "missing"
	_, err = backend.Execute(ctx, env)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.Status)
}
