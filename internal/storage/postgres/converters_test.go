package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

func TestPtrToNullStringRoundTrip(t *testing.T) {
	assert.Equal(t, sql.Null[string]{}, ptrToNullString(nil))

	v := "hello"
	n := ptrToNullString(&v)
	require.True(t, n.Valid)
	assert.Equal(t, "hello", n.V)

	got := nullStringToPtr(n)
	require.NotNil(t, got)
	assert.Equal(t, "hello", *got)

	assert.Nil(t, nullStringToPtr(sql.Null[string]{}))
}

func TestPtrToNullInt32RoundTrip(t *testing.T) {
	assert.Equal(t, sql.Null[int32]{}, ptrToNullInt32(nil))

	v := 42
	n := ptrToNullInt32(&v)
	require.True(t, n.Valid)
	assert.Equal(t, int32(42), n.V)

	got := nullInt32ToPtr(n)
	require.NotNil(t, got)
	assert.Equal(t, 42, *got)
}

func TestPtrToNullTimeRoundTripNormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	v := time.Date(2026, 1, 2, 3, 0, 0, 0, loc)

	n := ptrToNullTime(&v)
	require.True(t, n.Valid)

	got := nullTimeToPtr(n)
	require.NotNil(t, got)
	assert.Equal(t, v.UTC(), *got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestTriStateConversionRoundTrip(t *testing.T) {
	assert.Equal(t, "true", triStateToDB(domain.TriTrue))
	assert.Equal(t, "false", triStateToDB(domain.TriFalse))
	assert.Equal(t, "unknown", triStateToDB(domain.TriUnknown))

	assert.Equal(t, domain.TriTrue, triStateFromDB("true"))
	assert.Equal(t, domain.TriFalse, triStateFromDB("false"))
	assert.Equal(t, domain.TriUnknown, triStateFromDB("unknown"))
	assert.Equal(t, domain.TriUnknown, triStateFromDB("garbage"), "unrecognized values default to unknown rather than erroring")
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	m := map[string]any{"source": "github", "count": float64(3)}
	b := metadataToJSON(m)
	assert.JSONEq(t, `{"source":"github","count":3}`, string(b))

	got := metadataFromJSON(b)
	assert.Equal(t, m, got)

	assert.Equal(t, []byte("{}"), metadataToJSON(nil))
	assert.Nil(t, metadataFromJSON(nil))
	assert.Nil(t, metadataFromJSON([]byte("not json")))
}

func TestDBWorkItemToDomain(t *testing.T) {
	now := time.Now()
	spec := sql.Null[string]{V: "do X", Valid: true}
	row := sqlcgen.WorkItem{
		ID:                 "wi-1",
		Repo:               "o/r",
		Type:               "execution",
		Status:             "queued",
		Priority:           "high",
		Spec:               spec,
		VerificationPassed: "true",
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	item := dbWorkItemToDomain(row)
	assert.Equal(t, "wi-1", item.ID)
	assert.Equal(t, domain.WorkItemTypeExecution, item.Type)
	assert.Equal(t, domain.StatusQueued, item.Status)
	assert.Equal(t, domain.PriorityHigh, item.Priority)
	require.NotNil(t, item.Spec)
	assert.Equal(t, "do X", *item.Spec)
	assert.Equal(t, domain.TriTrue, item.VerificationPassed)
}

func TestDBLearningToDomain(t *testing.T) {
	row := sqlcgen.Learning{ID: "l1", Repo: "o/r", Spec: "s1", Content: "don't do X", CreatedAt: time.Now()}
	l := dbLearningToDomain(row)
	assert.Equal(t, "don't do X", l.Content)
	assert.Equal(t, "o/r", l.Repo)
}

func TestDBReviewToDomainParsesFindings(t *testing.T) {
	row := sqlcgen.PRReview{
		WorkItemID:    "wi-1",
		SpecAlignment: "strong",
		CodeQuality:   "good",
		Findings:      []byte(`{"issues":["nit"]}`),
		CreatedAt:     time.Now(),
	}
	review := dbReviewToDomain(row)
	assert.Equal(t, "strong", review.SpecAlignment)
	assert.Equal(t, []any{"nit"}, review.Findings["issues"])
}
