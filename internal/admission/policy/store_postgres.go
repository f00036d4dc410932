package policy

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"
)

// PostgresStore reads policies from a persisted key/value configuration
// table. Keys are namespaced per endpoint class:
//
//	admission.<class>.max_attempts
//	admission.<class>.window_minutes
//	admission.<class>.block_minutes
//	admission.<class>.mode
//
// Missing sub-keys fall back to the built-in default policy's values; a
// class with no keys at all is reported as not found.
//
// Schema:
//
//	CREATE TABLE admission_policies (
//	    key   TEXT PRIMARY KEY,
//	    value TEXT NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

const keyNamespace = "admission."

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LoadPolicy(ctx context.Context, class models.EndpointClass) (models.Policy, error) {
	prefix := keyNamespace + class.String() + "."
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM admission_policies WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return models.Policy{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "query admission policies")
	}
	defer rows.Close() //nolint:errcheck

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "scan admission policy row")
		}
		values[strings.TrimPrefix(key, prefix)] = value
	}
	if err := rows.Err(); err != nil {
		return models.Policy{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read admission policy rows")
	}
	if len(values) == 0 {
		return models.Policy{}, dErrors.New(dErrors.CodeNotFound, "no policy configured for class "+class.String())
	}

	return policyFromValues(values), nil
}

// policyFromValues assembles a policy from sub-key strings, substituting
// defaults for absent or unparsable entries. Range validation stays with
// the cache.
func policyFromValues(values map[string]string) models.Policy {
	p := models.DefaultPolicy()
	if v, ok := intValue(values, "max_attempts"); ok {
		p.MaxAttempts = v
	}
	if v, ok := intValue(values, "window_minutes"); ok {
		p.Window = time.Duration(v) * time.Minute
	}
	if v, ok := intValue(values, "block_minutes"); ok {
		p.BlockDuration = time.Duration(v) * time.Minute
	}
	if raw, ok := values["mode"]; ok {
		if mode, err := models.ParseConsumptionMode(raw); err == nil {
			p.Mode = mode
		}
	}
	return p
}

func intValue(values map[string]string, subKey string) (int, bool) {
	raw, ok := values[subKey]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}
