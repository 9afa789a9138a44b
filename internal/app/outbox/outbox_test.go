package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/events"
)

type sliceOutbox struct{ records []EventRecord }

func (o *sliceOutbox) Add(_ context.Context, rec EventRecord) error {
	o.records = append(o.records, rec)
	return nil
}

func (o *sliceOutbox) Flush(context.Context) error { return nil }

func mutated(commitID string) availability.CalendarMutated {
	return availability.CalendarMutated{
		CommitID:   commitID,
		PropertyID: "p1",
		Kind:       availability.MutationUnblock,
		Dates: []daterange.Date{
			daterange.MustParse("2024-07-05"),
			daterange.MustParse("2024-07-03"),
		},
		At: time.Date(2024, 7, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
	}
}

func TestEncodeDescribesMutation(t *testing.T) {
	rec, err := JSONEventEncoder{}.Encode(mutated("c-1"))
	require.NoError(t, err)

	assert.Equal(t, "calendar.mutated", rec.Name)
	assert.Equal(t, "p1", rec.Aggregate)
	assert.Equal(t, time.UTC, rec.OccurredAt.Location())
	assert.Equal(t, map[string]string{
		HeaderEventName:  "calendar.mutated",
		HeaderPropertyID: "p1",
		HeaderKind:       "unblock",
		HeaderCommitID:   "c-1",
		HeaderDateCount:  "2",
		HeaderFirstDate:  "2024-07-03",
		HeaderLastDate:   "2024-07-05",
	}, rec.Headers)
	assert.Contains(t, string(rec.Payload), `"commit_id":"c-1"`)
}

func TestEncodeDerivesIDFromCommit(t *testing.T) {
	enc := JSONEventEncoder{IDGenerator: func() string { return "generated" }}

	first, err := enc.Encode(mutated("c-1"))
	require.NoError(t, err)
	again, err := enc.Encode(mutated("c-1"))
	require.NoError(t, err)
	other, err := enc.Encode(mutated("c-2"))
	require.NoError(t, err)
	failed, err := enc.Encode(availability.CalendarMutationFailed{CommitID: "c-1", PropertyID: "p1", Kind: availability.MutationUnblock})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.NotEqual(t, first.ID, failed.ID)
	assert.Equal(t, "0", failed.Headers[HeaderDateCount])
	assert.NotContains(t, failed.Headers, HeaderFirstDate)

	loose, err := enc.Encode(mutated(""))
	require.NoError(t, err)
	assert.Equal(t, "generated", loose.ID)
}

func TestRecordDomainEventsIsAllOrNothingOnEncode(t *testing.T) {
	box := &sliceOutbox{}
	evs := []events.DomainEvent{mutated("c-1"), availability.CalendarMutated{Kind: availability.MutationBlock}}

	err := RecordDomainEvents(context.Background(), box, JSONEventEncoder{}, evs)
	require.Error(t, err)
	assert.Empty(t, box.records)

	require.NoError(t, RecordDomainEvents(context.Background(), box, nil, evs[:1]))
	require.Len(t, box.records, 1)
	assert.Equal(t, "p1", box.records[0].Aggregate)
}
