// Package mongo stores expenses in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"depenses/internal/core"
	"depenses/internal/storage"
)

const collectionName = "expenses"

type document struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Amount        int64              `bson:"amount"`
	Currency      string             `bson:"currency"`
	Label         string             `bson:"label"`
	Date          time.Time          `bson:"date"`
	Remark        string             `bson:"remark,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
	BalanceStatus string             `bson:"balanceStatus"`
	BalanceAmount int64              `bson:"balanceAmount"`
}

// Store is a storage.Store on one MongoDB collection. Bulk label operations
// use UpdateMany/DeleteMany, which are not atomic across documents: a failure
// part way is returned to the caller with whatever count was applied unknown.
type Store struct {
	cli *mongo.Client
	col *mongo.Collection

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Connect dials uri, checks the server answers and prepares the indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, storage.Unavailable("mongo ping", err)
	}
	s := New(cli, database)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(cli *mongo.Client, database string) *Store {
	return &Store{
		cli: cli,
		col: cli.Database(database).Collection(collectionName),
		now: time.Now,
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "label", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo create indexes: %w", wrap(err))
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := s.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't Find in List: %w", wrap(err))
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			slog.ErrorContext(ctx, "mongo couldn't close cursor in List", "error", err)
		}
	}(cursor, ctx)

	out := make([]core.Expense, 0)
	for cursor.Next(ctx) {
		var d document
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo couldn't Decode in List: %w", err)
		}
		out = append(out, toExpense(d))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor err in List: %w", wrap(err))
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	var d document
	if err := s.col.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
		}
		return core.Expense{}, fmt.Errorf("mongo couldn't FindOne in Get: %w", wrap(err))
	}
	return toExpense(d), nil
}

func (s *Store) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = e.Normalize()
	now := s.now().UTC().Truncate(time.Millisecond)
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	d := fromExpense(e)
	d.ID = primitive.NewObjectID()
	if _, err := s.col.InsertOne(ctx, d); err != nil {
		return core.Expense{}, fmt.Errorf("mongo couldn't InsertOne in Create: %w", wrap(err))
	}
	return toExpense(d), nil
}

func (s *Store) Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	next := u.Apply(current)
	next.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}
	if err := next.Validate(); err != nil {
		return core.Expense{}, err
	}

	d := fromExpense(next)
	oid, _ := primitive.ObjectIDFromHex(id)
	d.ID = oid
	res, err := s.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: oid}}, d)
	if err != nil {
		return core.Expense{}, fmt.Errorf("mongo couldn't ReplaceOne in Update: %w", wrap(err))
	}
	if res.MatchedCount == 0 {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, core.ErrNotFound)
	}
	return toExpense(d), nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := s.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, fmt.Errorf("mongo couldn't DeleteOne in Delete: %w", wrap(err))
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) RenameLabel(ctx context.Context, oldLabel, newLabel string) (int64, error) {
	from, to, noop, err := storage.CheckRename(oldLabel, newLabel)
	if err != nil || noop {
		return 0, err
	}
	res, err := s.col.UpdateMany(ctx,
		bson.D{{Key: "label", Value: from}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "label", Value: to},
			{Key: "updatedAt", Value: s.now().UTC()},
		}}})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't UpdateMany in RenameLabel: %w", wrap(err))
	}
	return res.ModifiedCount, nil
}

func (s *Store) DeleteByLabel(ctx context.Context, label string) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.D{{Key: "label", Value: label}})
	if err != nil {
		return 0, fmt.Errorf("mongo couldn't DeleteMany in DeleteByLabel: %w", wrap(err))
	}
	return res.DeletedCount, nil
}

func (s *Store) Labels(ctx context.Context) ([]string, error) {
	values, err := s.col.Distinct(ctx, "label", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't Distinct in Labels: %w", wrap(err))
	}
	labels := make([]string, 0, len(values))
	for _, v := range values {
		if l, ok := v.(string); ok {
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.cli.Ping(ctx, nil); err != nil {
		return storage.Unavailable("mongo ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.cli.Disconnect(ctx)
}

func fromExpense(e core.Expense) document {
	return document{
		Amount:        e.Amount,
		Currency:      string(e.Currency),
		Label:         e.Label,
		Date:          wallClockUTC(e.Date),
		Remark:        e.Remark,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		BalanceStatus: string(e.BalanceStatus),
		BalanceAmount: e.BalanceAmount,
	}
}

func toExpense(d document) core.Expense {
	return core.Expense{
		ID:            d.ID.Hex(),
		Amount:        d.Amount,
		Currency:      core.Currency(d.Currency),
		Label:         d.Label,
		Date:          d.Date.UTC(),
		Remark:        d.Remark,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		BalanceStatus: core.BalanceStatus(d.BalanceStatus),
		BalanceAmount: d.BalanceAmount,
	}
}

// wallClockUTC keeps the calendar day and time of t as read in its own zone.
// BSON dates carry no zone, so an EAT midnight stored as an instant would read
// back as the previous day.
func wallClockUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func wrap(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return err
}
