package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// postgresRepo общая основа репозиториев: пул, билдер запросов
// и выбор транзакции из контекста.
type postgresRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func newPostgresRepo(db *sqlx.DB) postgresRepo {
	return postgresRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *postgresRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return trm.Conn(ctx, r.db).ExecContext(ctx, query, args...)
}

func (r *postgresRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	return trm.Conn(ctx, r.db).GetContext(ctx, dest, query, args...)
}

func (r *postgresRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	return trm.Conn(ctx, r.db).SelectContext(ctx, dest, query, args...)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// jsonParam сериализует значение для jsonb-колонки.
func jsonParam(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func variantParam(v map[string]string) (string, error) {
	if v == nil {
		v = map[string]string{}
	}
	return jsonParam(v)
}

func parseVariant(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var v map[string]string
	if err := json.Unmarshal(raw, &v); err != nil || len(v) == 0 {
		return nil
	}
	return v
}
