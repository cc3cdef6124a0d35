package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"messenger-core/errs"
	"messenger-core/model"
)

type MongoMessages struct {
	coll *mongo.Collection
}

var _ Messages = (*MongoMessages)(nil)

func NewMongoMessages(coll *mongo.Collection) *MongoMessages {
	return &MongoMessages{coll: coll}
}

// EnsureIndexes creates the pair/time and unread indexes used by the queries below.
func (r *MongoMessages) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("pair_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "receiverId", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("receiver_unread_idx"),
		},
	})
	return err
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"senderId": a, "receiverId": b},
		bson.M{"senderId": b, "receiverId": a},
	}}
}

func (r *MongoMessages) Create(ctx context.Context, m *model.Message) error {
	prepare(m)
	// mongo keeps millisecond precision; truncate so the caller sees what is stored
	m.CreatedAt = m.CreatedAt.Truncate(time.Millisecond)
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MongoMessages) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoMessages) FindConversation(ctx context.Context, a, b string, before *Cursor, limit int) ([]model.Message, error) {
	filter := pairFilter(a, b)
	if before != nil {
		filter = bson.M{"$and": bson.A{filter, olderThan(before)}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []model.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func olderThan(c *Cursor) bson.M {
	at := c.CreatedAt.UTC()
	if c.ID == "" {
		return bson.M{"createdAt": bson.M{"$lt": at}}
	}
	return bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lt": at}},
		bson.M{"createdAt": at, "_id": bson.M{"$lt": c.ID}},
	}}
}

// conversationPipeline groups every message touching userID by counterpart,
// keeping the newest message and the count unread by userID.
func conversationPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"senderId": userID},
			bson.M{"receiverId": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$senderId", userID}}, "$receiverId", "$senderId",
			}},
			"last": bson.M{"$first": "$$ROOT"},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiverId", userID}},
					bson.M{"$eq": bson.A{"$read", false}},
				}}, 1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last.createdAt", Value: -1}}}},
	}
}

type conversationDoc struct {
	CounterpartID string        `bson:"_id"`
	Last          model.Message `bson:"last"`
	Unread        int64         `bson:"unread"`
}

func (r *MongoMessages) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	cur, err := r.coll.Aggregate(ctx, conversationPipeline(userID))
	if err != nil {
		return nil, err
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.ConversationSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.ConversationSummary{CounterpartID: d.CounterpartID, Last: d.Last, Unread: d.Unread})
	}
	return out, nil
}

// MarkRead claims unread messages one at a time, so each id is reported by
// exactly one caller.
func (r *MongoMessages) MarkRead(ctx context.Context, senderID, receiverID string) ([]string, error) {
	filter := bson.M{"senderId": senderID, "receiverId": receiverID, "read": false}
	update := bson.M{"$set": bson.M{"read": true}}
	opts := options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1})

	var ids []string
	for {
		var doc struct {
			ID string `bson:"_id"`
		}
		err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
}

func (r *MongoMessages) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

func (r *MongoMessages) ConversationAttachmentKeys(ctx context.Context, a, b string) ([]string, error) {
	filter := pairFilter(a, b)
	filter["voiceStorageKey"] = bson.M{"$exists": true, "$ne": ""}
	values, err := r.coll.Distinct(ctx, "voiceStorageKey", filter)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

func (r *MongoMessages) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, pairFilter(a, b))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
