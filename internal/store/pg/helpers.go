package pg

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	return t
}

// jsonList marshals a string slice for a JSONB column; nil becomes [].
func jsonList(v []string) []byte {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return b
}

func scanList(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	json.Unmarshal(b, &out)
	return out
}

// jsonMap marshals a string map for a JSONB column; nil becomes {}.
func jsonMap(v map[string]string) []byte {
	if v == nil {
		v = map[string]string{}
	}
	b, _ := json.Marshal(v)
	return b
}

func scanMap(b []byte) map[string]string {
	if len(b) == 0 {
		return nil
	}
	var out map[string]string
	json.Unmarshal(b, &out)
	return out
}

// pqStringArray renders a text[] literal for the stdlib driver; pair it
// with a ::text[] cast in the query.
func pqStringArray(vals []string) string {
	if len(vals) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// isUniqueViolation reports a Postgres 23505 error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// stdlib driver may surface the code only in the message
	return err != nil && strings.Contains(err.Error(), "23505")
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
