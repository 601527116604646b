package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectOnboardingSQL = `SELECT id, subsidiary, is_form_complete, india_form_data FROM onboardings WHERE id = $1`

// rowQuerier は pgxpool.Pool のうち Reader が使う部分です。
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reader はオンボーディング記録を PostgreSQL から読み取ります。書き込みは行いません。
type Reader struct {
	db     rowQuerier
	cipher *FieldCipher
}

// NewReader は Reader を作成します。cipher が nil の場合、暗号化済みの値は復号しません。
func NewReader(db rowQuerier, cipher *FieldCipher) *Reader {
	return &Reader{db: db, cipher: cipher}
}

// Get は id の記録を返します。存在しない場合は ErrNotFound を返します。
// India フォームは暗号化フィールドを復号した状態で返します。
func (r *Reader) Get(ctx context.Context, id string) (*Record, error) {
	var (
		record     Record
		subsidiary string
		formJSON   []byte
	)
	err := r.db.QueryRow(ctx, selectOnboardingSQL, id).Scan(&record.ID, &subsidiary, &record.IsFormComplete, &formJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query onboarding %s: %w", id, err)
	}
	record.Subsidiary = Subsidiary(subsidiary)

	if len(formJSON) == 0 || string(formJSON) == "null" {
		return &record, nil
	}

	var form IndiaForm
	if err := json.Unmarshal(formJSON, &form); err != nil {
		return nil, fmt.Errorf("decode india_form_data for %s: %w", id, err)
	}
	if r.cipher != nil {
		if err := r.cipher.DecryptForm(&form); err != nil {
			return nil, fmt.Errorf("decrypt india_form_data for %s: %w", id, err)
		}
	}
	record.IndiaForm = &form
	return &record, nil
}

// NewDBPool は DSN から接続プールを作成します。
func NewDBPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}
