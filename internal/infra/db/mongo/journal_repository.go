package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hostboard/internal/app/coordinator"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

// JournalRepository stores one document per commit in calendar_journal.
type JournalRepository struct {
	col *mongo.Collection
}

func NewJournalRepository(db *mongo.Database) *JournalRepository {
	col := db.Collection("calendar_journal")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "finished_at", Value: -1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &JournalRepository{col: col}
}

func (r *JournalRepository) Append(ctx context.Context, entry coordinator.Entry) error {
	_, err := r.col.InsertOne(ctx, newJournalDocument(entry))
	return err
}

// Recent returns up to limit entries of a property, newest first.
func (r *JournalRepository) Recent(ctx context.Context, propertyID string, limit int) ([]coordinator.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"property_id": propertyID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []journalDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]coordinator.Entry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toEntry())
	}
	return out, nil
}

type journalDocument struct {
	ID         string            `bson:"_id"`
	PropertyID string            `bson:"property_id"`
	Kind       string            `bson:"kind"`
	Value      string            `bson:"value,omitempty"`
	Actor      string            `bson:"actor,omitempty"`
	Succeeded  []string          `bson:"succeeded"`
	Failed     []failureDocument `bson:"failed"`
	StartedAt  time.Time         `bson:"started_at"`
	FinishedAt time.Time         `bson:"finished_at"`
}

type failureDocument struct {
	Date   string `bson:"date"`
	Reason string `bson:"reason"`
}

func newJournalDocument(e coordinator.Entry) journalDocument {
	doc := journalDocument{
		ID:         e.ID,
		PropertyID: e.PropertyID,
		Kind:       string(e.Kind),
		Value:      e.Value,
		Actor:      e.Actor,
		Succeeded:  make([]string, 0, len(e.Succeeded)),
		Failed:     make([]failureDocument, 0, len(e.Failed)),
		StartedAt:  e.StartedAt.UTC(),
		FinishedAt: e.FinishedAt.UTC(),
	}
	for _, d := range e.Succeeded {
		doc.Succeeded = append(doc.Succeeded, d.String())
	}
	for _, f := range e.Failed {
		doc.Failed = append(doc.Failed, failureDocument{Date: f.Date.String(), Reason: f.Reason})
	}
	return doc
}

func (d journalDocument) toEntry() coordinator.Entry {
	e := coordinator.Entry{
		ID:         d.ID,
		PropertyID: d.PropertyID,
		Kind:       availability.MutationKind(d.Kind),
		Value:      d.Value,
		Actor:      d.Actor,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
	}
	for _, raw := range d.Succeeded {
		if date, err := daterange.Parse(raw); err == nil {
			e.Succeeded = append(e.Succeeded, date)
		}
	}
	for _, f := range d.Failed {
		date, err := daterange.Parse(f.Date)
		if err != nil {
			continue
		}
		e.Failed = append(e.Failed, coordinator.DateFailure{Date: date, Reason: f.Reason})
	}
	return e
}

var _ coordinator.Journal = (*JournalRepository)(nil)
