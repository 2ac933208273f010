package bolt

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hrygo/omnichat/store"
)

type conversationRecord struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Pinned    bool   `json:"pinned"`
	Archived  bool   `json:"archived"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

func (r *conversationRecord) toStore(messageCount int) *store.Conversation {
	return &store.Conversation{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Pinned:       r.Pinned,
		Archived:     r.Archived,
		CreatedTs:    r.CreatedTs,
		UpdatedTs:    r.UpdatedTs,
		MessageCount: int32(messageCount),
	}
}

func (d *DB) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	rec := conversationRecord{
		ID:        create.ID,
		OwnerID:   create.OwnerID,
		Title:     create.Title,
		Pinned:    create.Pinned,
		Archived:  create.Archived,
		CreatedTs: create.CreatedTs,
		UpdatedTs: create.UpdatedTs,
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationBucket)
		if b.Get([]byte(rec.ID)) != nil {
			return errors.Errorf("conversation %s already exists", rec.ID)
		}
		return putConversation(b, &rec)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	list := make([]*store.Conversation, 0)
	err := d.db.View(func(tx *bolt.Tx) error {
		messages := tx.Bucket(messageBucket)
		match := func(rec *conversationRecord) {
			if find.OwnerID != nil && rec.OwnerID != *find.OwnerID {
				return
			}
			if find.Pinned != nil && rec.Pinned != *find.Pinned {
				return
			}
			if find.Archived != nil && rec.Archived != *find.Archived {
				return
			}
			count := 0
			if nested := messages.Bucket([]byte(rec.ID)); nested != nil {
				count = nested.Stats().KeyN
			}
			list = append(list, rec.toStore(count))
		}

		b := tx.Bucket(conversationBucket)
		if find.ID != nil {
			v := b.Get([]byte(*find.ID))
			if v == nil {
				return nil
			}
			rec := &conversationRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			match(rec)
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			rec := &conversationRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			match(rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].ID < list[j].ID
	})
	if find.Limit != nil && *find.Limit >= 0 && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	if update.Title == nil && update.Pinned == nil && update.Archived == nil && update.UpdatedTs == nil {
		return nil, errors.New("no fields to update")
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationBucket)
		v := b.Get([]byte(update.ID))
		if v == nil {
			return store.ErrNotFound
		}
		rec := &conversationRecord{}
		if err := json.Unmarshal(v, rec); err != nil {
			return err
		}
		if update.Title != nil {
			rec.Title = *update.Title
		}
		if update.Pinned != nil {
			rec.Pinned = *update.Pinned
		}
		if update.Archived != nil {
			rec.Archived = *update.Archived
		}
		if update.UpdatedTs != nil {
			rec.UpdatedTs = *update.UpdatedTs
		}
		return putConversation(b, rec)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update conversation")
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

func (d *DB) DeleteConversation(_ context.Context, delete *store.DeleteConversation) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationBucket)
		key := []byte(delete.ID)
		if b.Get(key) == nil {
			return store.ErrNotFound
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		messages := tx.Bucket(messageBucket)
		if messages.Bucket(key) != nil {
			return messages.DeleteBucket(key)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}

func putConversation(b *bolt.Bucket, rec *conversationRecord) error {
	enc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ID), enc)
}
