package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edgeflare/pgbridge/pkg/config"
)

// Backend executes one bridged request. Implementations must issue exactly one
// call per Execute and keep no state between calls.
//
// Application-level failures (bad filter syntax, permission denied) are part
// of a normal *Result, or a *RejectedError when the backend raises them.
// Any other error means the call itself failed.
type Backend interface {
	Execute(ctx context.Context, env *Envelope) (*Result, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Envelope is the single structured call handed to a Backend.
type Envelope struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
	Headers  map[string]string
	Config   CallConfig
}

// CallConfig is the per-call view of the process configuration, plus the
// request metadata the backend exposes to SQL as settings.
type CallConfig struct {
	Schema            string            `json:"schema"`
	Env               map[string]string `json:"env"`
	PathPrefix        string            `json:"path_prefix"`
	MaxRows           int               `json:"max_rows"`
	Schemas           string            `json:"schemas"`
	AllowLoginRoles   bool              `json:"allow_login_roles"`
	CustomRelations   any               `json:"custom_relations"`
	CustomPermissions any               `json:"custom_permissions"`
}

// Keys of CallConfig.Env.
const (
	EnvRequestMethod  = "request.method"
	EnvRequestHeaders = "request.headers"
	EnvRequestGet     = "request.get"
	EnvSearchPath     = "search_path"
)

// Result is what the backend answered for one call.
type Result struct {
	Body           *string
	Status         int
	Headers        map[string]string
	PageTotal      int64
	TotalResultSet *int64 // nil when the backend did not count
}

// validStatus reports whether s can be sent as an HTTP status. Zero means
// unset and becomes 200.
func validStatus(s int) bool {
	return s == 0 || (s >= 100 && s <= 599)
}

// NewEnvelope builds the backend call for req under cfg.
func NewEnvelope(req *Request, cfg *config.Config) (*Envelope, error) {
	headersJSON, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding request headers: %w", err)
	}
	queryJSON, err := json.Marshal(req.Query())
	if err != nil {
		return nil, fmt.Errorf("encoding query parameters: %w", err)
	}

	return &Envelope{
		Method:   req.Method,
		Path:     req.Path,
		RawQuery: req.RawQuery,
		Body:     req.Body,
		Headers:  req.Headers,
		Config: CallConfig{
			Schema: cfg.Schema,
			Env: map[string]string{
				EnvRequestMethod:  req.Method,
				EnvRequestHeaders: string(headersJSON),
				EnvRequestGet:     string(queryJSON),
				EnvSearchPath:     strings.Join(cfg.ExtraSearchPath, ","),
			},
			PathPrefix:        cfg.PathPrefix,
			MaxRows:           cfg.MaxRows,
			Schemas:           strings.Join(cfg.Schemas, ","),
			AllowLoginRoles:   cfg.AllowLoginRoles,
			CustomRelations:   cfg.CustomRelations,
			CustomPermissions: cfg.CustomPermissions,
		},
	}, nil
}
