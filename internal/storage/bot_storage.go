package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// BotStorage reads and manages bot configurations
type BotStorage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewBotStorage creates a new BotStorage instance
func NewBotStorage(db *sqlx.DB, logger *slog.Logger) *BotStorage {
	return &BotStorage{
		db:     db,
		logger: logger,
	}
}

// GetBotByID retrieves a bot configuration by id
func (s *BotStorage) GetBotByID(ctx context.Context, botID string) (*domain.BotConfiguration, error) {
	return s.getOne(ctx, `SELECT `+botColumns+` FROM bot_configurations WHERE id = $1`, botID)
}

// GetBotByName retrieves a bot configuration by its unique name
func (s *BotStorage) GetBotByName(ctx context.Context, name string) (*domain.BotConfiguration, error) {
	return s.getOne(ctx, `SELECT `+botColumns+` FROM bot_configurations WHERE name = $1`, name)
}

func (s *BotStorage) getOne(ctx context.Context, query string, arg any) (*domain.BotConfiguration, error) {
	var bot domain.BotConfiguration
	if err := s.db.GetContext(ctx, &bot, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBotNotFound
		}
		return nil, fmt.Errorf("failed to get bot configuration: %w", err)
	}
	return &bot, nil
}

// BotFilter narrows ListBots
type BotFilter struct {
	Skip      int
	Limit     int
	IsEnabled *bool
}

// ListBots returns bots ordered by name
func (s *BotStorage) ListBots(ctx context.Context, filter BotFilter) ([]domain.BotConfiguration, error) {
	query := `SELECT ` + botColumns + ` FROM bot_configurations`
	args := []any{}

	if filter.IsEnabled != nil {
		query += ` WHERE is_enabled = $1`
		args = append(args, *filter.IsEnabled)
	}

	query += fmt.Sprintf(" ORDER BY name OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Skip, filter.Limit)

	bots := []domain.BotConfiguration{}
	if err := s.db.SelectContext(ctx, &bots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bot configurations: %w", err)
	}
	return bots, nil
}

// CreateBot inserts a bot configuration
func (s *BotStorage) CreateBot(ctx context.Context, bot *domain.BotConfiguration) error {
	query := `
		INSERT INTO bot_configurations (` + botColumns + `)
		VALUES (
			:id, :name, :description, :script_identifier, :parameter_schema,
			:default_parameters, :is_enabled, :created_by, :created_at, :updated_at
		)
	`

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, query, bot)
		return err
	})
	if err != nil {
		if isPQCode(err, pgUniqueViolation) {
			return domain.ErrDuplicateBotName
		}
		return fmt.Errorf("failed to create bot configuration: %w", err)
	}

	s.logger.Info("Bot configuration created",
		slog.String("bot_id", bot.ID),
		slog.String("name", bot.Name),
	)
	return nil
}

// UpdateBot overwrites the mutable fields of a bot configuration
func (s *BotStorage) UpdateBot(ctx context.Context, bot *domain.BotConfiguration) error {
	query := `
		UPDATE bot_configurations
		SET name = :name,
			description = :description,
			script_identifier = :script_identifier,
			parameter_schema = :parameter_schema,
			default_parameters = :default_parameters,
			is_enabled = :is_enabled,
			updated_at = :updated_at
		WHERE id = :id
	`

	var affected int64
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, bot)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if isPQCode(err, pgUniqueViolation) {
			return domain.ErrDuplicateBotName
		}
		return fmt.Errorf("failed to update bot configuration: %w", err)
	}
	if affected == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// DeleteBot removes a bot configuration
func (s *BotStorage) DeleteBot(ctx context.Context, botID string) error {
	var affected int64
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM bot_configurations WHERE id = $1`, botID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if isPQCode(err, pgForeignKeyViolation) {
			return domain.ErrBotInUse
		}
		return fmt.Errorf("failed to delete bot configuration: %w", err)
	}
	if affected == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}
