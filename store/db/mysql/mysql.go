package mysql

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	cfg, err := mysql.ParseDSN(profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse dsn: %s", profile.DSN)
	}
	// Report matched rows on UPDATE so an unchanged row is not mistaken for a missing one.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mysql connector")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS `conversation` (" +
			"`id` VARCHAR(64) NOT NULL PRIMARY KEY," +
			"`owner_id` VARCHAR(256) NOT NULL DEFAULT ''," +
			"`title` TEXT NOT NULL," +
			"`pinned` BOOLEAN NOT NULL DEFAULT FALSE," +
			"`archived` BOOLEAN NOT NULL DEFAULT FALSE," +
			"`created_ts` BIGINT NOT NULL," +
			"`updated_ts` BIGINT NOT NULL," +
			"INDEX `idx_conversation_owner` (`owner_id`, `updated_ts`)" +
			")",
		"CREATE TABLE IF NOT EXISTS `message` (" +
			"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
			"`conversation_id` VARCHAR(64) NOT NULL," +
			"`role` VARCHAR(32) NOT NULL," +
			"`content` MEDIUMTEXT NOT NULL," +
			"`image_ref` TEXT NOT NULL," +
			"`created_ts` BIGINT NOT NULL," +
			"INDEX `idx_message_conversation` (`conversation_id`, `created_ts`, `id`)," +
			"CONSTRAINT `fk_message_conversation` FOREIGN KEY (`conversation_id`) REFERENCES `conversation` (`id`) ON DELETE CASCADE" +
			")",
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "failed to migrate mysql schema")
		}
	}
	return nil
}
