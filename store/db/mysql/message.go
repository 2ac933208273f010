package mysql

import (
	"context"
	"fmt"

	"github.com/hrygo/omnichat/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	stmt := "INSERT INTO `message` (`conversation_id`, `role`, `content`, `image_ref`, `created_ts`) VALUES (?, ?, ?, ?, ?)"
	result, err := d.db.ExecContext(ctx, stmt, create.ConversationID, create.Role, create.Content, create.ImageRef, create.CreatedTs)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}
	create.ID = id
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	order := "ASC"
	if find.Desc {
		order = "DESC"
	}
	query := fmt.Sprintf(
		"SELECT `id`, `conversation_id`, `role`, `content`, `image_ref`, `created_ts` FROM `message` "+
			"WHERE `conversation_id` = ? ORDER BY `created_ts` %s, `id` %s",
		order, order,
	)
	args := []any{find.ConversationID}
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ImageRef, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
