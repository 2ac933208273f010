package bolt

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hrygo/omnichat/store"
)

type messageRecord struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	ImageRef       string `json:"imageRef,omitempty"`
	CreatedTs      int64  `json:"createdTs"`
}

func (d *DB) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	err := d.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationBucket).Get([]byte(create.ConversationID)) == nil {
			return errors.Errorf("conversation %s does not exist", create.ConversationID)
		}

		root := tx.Bucket(messageBucket)
		seq, err := root.NextSequence()
		if err != nil {
			return err
		}
		nested, err := root.CreateBucketIfNotExists([]byte(create.ConversationID))
		if err != nil {
			return err
		}

		create.ID = int64(seq)
		enc, err := json.Marshal(&messageRecord{
			ID:             create.ID,
			ConversationID: create.ConversationID,
			Role:           string(create.Role),
			Content:        create.Content,
			ImageRef:       create.ImageRef,
			CreatedTs:      create.CreatedTs,
		})
		if err != nil {
			return err
		}
		return nested.Put(itob(seq), enc)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

// ListMessages walks the conversation's bucket in key order. Keys are
// global sequence numbers and timestamps are clamped upstream, so key
// order matches (created_ts, id) order.
func (d *DB) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	list := make([]*store.Message, 0)
	err := d.db.View(func(tx *bolt.Tx) error {
		nested := tx.Bucket(messageBucket).Bucket([]byte(find.ConversationID))
		if nested == nil {
			return nil
		}

		c := nested.Cursor()
		first, next := c.First, c.Next
		if find.Desc {
			first, next = c.Last, c.Prev
		}
		for k, v := first(); k != nil; k, v = next() {
			if find.Limit != nil && len(list) >= *find.Limit {
				break
			}
			rec := messageRecord{}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			list = append(list, &store.Message{
				ID:             rec.ID,
				ConversationID: rec.ConversationID,
				Role:           store.Role(rec.Role),
				Content:        rec.Content,
				ImageRef:       rec.ImageRef,
				CreatedTs:      rec.CreatedTs,
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return list, nil
}
