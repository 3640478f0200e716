package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"healthhub/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresCredentialRepository CredentialRepository 的 PostgreSQL 实现
type PostgresCredentialRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresCredentialRepository 创建凭证仓库
func NewPostgresCredentialRepository(db *sql.DB, logger *zap.Logger) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db, logger: logger}
}

const credentialColumns = `
	id, user_id, device_type, auth_type, encrypted_secret, config,
	is_valid, sync_enabled, last_sync_at, last_error, error_count,
	created_at, updated_at`

func (r *PostgresCredentialRepository) scanCredential(row interface{ Scan(...any) error }) (*domain.DeviceCredential, error) {
	cred := &domain.DeviceCredential{}
	var lastSyncAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.DeviceType,
		&cred.AuthType,
		&cred.EncryptedSecret,
		&cred.Config,
		&cred.IsValid,
		&cred.SyncEnabled,
		&lastSyncAt,
		&lastError,
		&cred.ErrorCount,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid {
		cred.LastSyncAt = &lastSyncAt.Time
	}
	if lastError.Valid {
		cred.LastError = lastError.String
	}
	return cred, nil
}

// GetByUserAndType 获取凭证
func (r *PostgresCredentialRepository) GetByUserAndType(ctx context.Context, userID string, deviceType domain.DeviceType) (*domain.DeviceCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM device_credentials
		WHERE user_id = $1 AND device_type = $2
	`

	cred, err := r.scanCredential(r.db.QueryRowContext(ctx, query, userID, deviceType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotBound
		}
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return cred, nil
}

// ListByUser 获取用户全部凭证
func (r *PostgresCredentialRepository) ListByUser(ctx context.Context, userID string) ([]*domain.DeviceCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM device_credentials
		WHERE user_id = $1
		ORDER BY device_type
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*domain.DeviceCredential
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Upsert 绑定或重新绑定
// 重新绑定重置生命周期：新密钥给失败过的集成一次重新计数的机会
func (r *PostgresCredentialRepository) Upsert(ctx context.Context, cred *domain.DeviceCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	query := `
		INSERT INTO device_credentials (
			id, user_id, device_type, auth_type, encrypted_secret, config,
			is_valid, sync_enabled, error_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, 0, NOW(), NOW())
		ON CONFLICT (user_id, device_type) DO UPDATE SET
			auth_type = EXCLUDED.auth_type,
			encrypted_secret = EXCLUDED.encrypted_secret,
			config = EXCLUDED.config,
			is_valid = TRUE,
			sync_enabled = EXCLUDED.sync_enabled,
			last_error = NULL,
			error_count = 0,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		cred.ID, cred.UserID, cred.DeviceType, cred.AuthType,
		cred.EncryptedSecret, cred.Config, cred.SyncEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	r.logger.Info("Credential bound",
		zap.String("user_id", cred.UserID),
		zap.String("device_type", string(cred.DeviceType)),
	)
	return nil
}

// Delete 解绑
func (r *PostgresCredentialRepository) Delete(ctx context.Context, userID string, deviceType domain.DeviceType) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM device_credentials WHERE user_id = $1 AND device_type = $2`,
		userID, deviceType,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return domain.ErrNotBound
	}
	return nil
}

// UpdateSecret 仅更新密文（令牌刷新轮换）
func (r *PostgresCredentialRepository) UpdateSecret(ctx context.Context, id string, encryptedSecret string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE device_credentials SET encrypted_secret = $2, updated_at = NOW() WHERE id = $1`,
		id, encryptedSecret,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential secret: %w", err)
	}
	return nil
}

// MarkValid 同步成功，重置生命周期并记录同步时间
func (r *PostgresCredentialRepository) MarkValid(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_credentials
		SET is_valid = TRUE, error_count = 0, last_error = NULL, last_sync_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to mark credential valid: %w", err)
	}
	return nil
}

// MarkInvalid 认证失败，立即置无效
func (r *PostgresCredentialRepository) MarkInvalid(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_credentials
		SET is_valid = FALSE, last_error = $2, error_count = error_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark credential invalid: %w", err)
	}
	return nil
}

// RecordError 非认证类失败
// 计数与阈值判断放在同一条 UPDATE 里，保证并发下不会丢计数
func (r *PostgresCredentialRepository) RecordError(ctx context.Context, id string, reason string, threshold int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_credentials
		SET error_count = error_count + 1,
		    last_error = $2,
		    is_valid = CASE WHEN error_count + 1 >= $3 THEN FALSE ELSE is_valid END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, reason, threshold)
	if err != nil {
		return fmt.Errorf("failed to record credential error: %w", err)
	}
	return nil
}
