package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/omnichat/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := "INSERT INTO `conversation` (`id`, `owner_id`, `title`, `pinned`, `archived`, `created_ts`, `updated_ts`) VALUES (?, ?, ?, ?, ?, ?, ?)"
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.OwnerID, create.Title, create.Pinned, create.Archived, create.CreatedTs, create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "c.`id` = ?"), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "c.`owner_id` = ?"), append(args, *v)
	}
	if v := find.Pinned; v != nil {
		where, args = append(where, "c.`pinned` = ?"), append(args, *v)
	}
	if v := find.Archived; v != nil {
		where, args = append(where, "c.`archived` = ?"), append(args, *v)
	}

	query := fmt.Sprintf(
		"SELECT c.`id`, c.`owner_id`, c.`title`, c.`pinned`, c.`archived`, c.`created_ts`, c.`updated_ts`, COUNT(m.`id`) "+
			"FROM `conversation` c LEFT JOIN `message` m ON m.`conversation_id` = c.`id` "+
			"WHERE %s "+
			"GROUP BY c.`id`, c.`owner_id`, c.`title`, c.`pinned`, c.`archived`, c.`created_ts`, c.`updated_ts` "+
			"ORDER BY c.`updated_ts` DESC, c.`id`",
		strings.Join(where, " AND "),
	)
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Pinned, &c.Archived, &c.CreatedTs, &c.UpdatedTs, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "`title` = ?"), append(args, *v)
	}
	if v := update.Pinned; v != nil {
		set, args = append(set, "`pinned` = ?"), append(args, *v)
	}
	if v := update.Archived; v != nil {
		set, args = append(set, "`archived` = ?"), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "`updated_ts` = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := fmt.Sprintf("UPDATE `conversation` SET %s WHERE `id` = ?", strings.Join(set, ", "))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, store.ErrNotFound
	}

	list, err := d.ListConversations(ctx, &store.FindConversation{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM `conversation` WHERE `id` = ?", delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
