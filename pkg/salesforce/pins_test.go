package salesforce

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/model"
)

// mockClient implements Client for testing.
type mockClient struct {
	insertFn func(ctx context.Context, object string, records []map[string]any) ([]InsertResult, error)
	fieldsFn func(ctx context.Context, object string) ([]string, error)
	batches  [][]map[string]any
}

func (m *mockClient) Insert(ctx context.Context, object string, records []map[string]any) ([]InsertResult, error) {
	m.batches = append(m.batches, records)
	if m.insertFn != nil {
		return m.insertFn(ctx, object, records)
	}
	results := make([]InsertResult, len(records))
	for i := range records {
		results[i] = InsertResult{RecordID: fmt.Sprintf("a01%03d", i), OK: true}
	}
	return results, nil
}

func (m *mockClient) Fields(ctx context.Context, object string) ([]string, error) {
	if m.fieldsFn != nil {
		return m.fieldsFn(ctx, object)
	}
	return []string{"Id", "Name"}, nil
}

func testDrafts(n int) []model.PinDraft {
	drafts := make([]model.PinDraft, n)
	for i := range drafts {
		drafts[i] = model.PinDraft{
			ID:        fmt.Sprintf("d%d", i+1),
			CreatedBy: "user-1",
			Address: model.NormalizedAddress{
				FormattedAddress: "123 Main St, Toronto, ON M5V 1A1, Canada",
				StreetNumber:     "123",
				StreetName:       "Main St",
				City:             "Toronto",
				Province:         "ON",
				PostalCode:       "M5V 1A1",
			},
			Contact:    model.Contact{Name: "Jane Doe"},
			Status:     model.PinStatusPending,
			SourceFile: "upload.csv",
			Row:        i + 1,
		}
	}
	return drafts
}

func TestPinSink_BulkCreate_AllSucceed(t *testing.T) {
	mc := &mockClient{}
	sink := NewPinSink(mc, "")
	assert.Equal(t, DefaultPinObject, sink.Object())

	res, err := sink.BulkCreate(context.Background(), testDrafts(3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.FailedIDs)
	require.Len(t, mc.batches, 1)
	assert.Equal(t, "d1", mc.batches[0][0][fieldExternalID])
	assert.Equal(t, 1, mc.batches[0][0][fieldSourceRow])
}

func TestPinSink_BulkCreate_Batches(t *testing.T) {
	mc := &mockClient{}
	sink := NewPinSink(mc, "Pin__c")

	res, err := sink.BulkCreate(context.Background(), testDrafts(450))
	require.NoError(t, err)
	assert.Equal(t, 450, res.Created)
	require.Len(t, mc.batches, 3)
	assert.Len(t, mc.batches[0], 200)
	assert.Len(t, mc.batches[1], 200)
	assert.Len(t, mc.batches[2], 50)
}

func TestPinSink_BulkCreate_PartialFailure(t *testing.T) {
	mc := &mockClient{
		insertFn: func(_ context.Context, _ string, records []map[string]any) ([]InsertResult, error) {
			return []InsertResult{
				{RecordID: "a01", OK: true},
				{Messages: []string{"REQUIRED_FIELD_MISSING", "City__c"}},
				{},
			}, nil
		},
	}
	sink := NewPinSink(mc, "")

	res, err := sink.BulkCreate(context.Background(), testDrafts(4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"d2", "d3", "d4"}, res.FailedIDs)
	assert.Equal(t, []string{
		"d2: REQUIRED_FIELD_MISSING; City__c",
		"d3: insert rejected",
		"d4: no result returned",
	}, res.Errors)
}

func TestPinSink_BulkCreate_RequestError(t *testing.T) {
	mc := &mockClient{
		insertFn: func(context.Context, string, []map[string]any) ([]InsertResult, error) {
			return nil, errors.New("salesforce: insert into Pin__c: 503")
		},
	}
	sink := NewPinSink(mc, "")

	_, err := sink.BulkCreate(context.Background(), testDrafts(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPinSink_BulkCreate_LaterBatchError(t *testing.T) {
	calls := 0
	mc := &mockClient{}
	mc.insertFn = func(_ context.Context, _ string, records []map[string]any) ([]InsertResult, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("timeout")
		}
		results := make([]InsertResult, len(records))
		for i := range results {
			results[i].OK = true
		}
		return results, nil
	}
	sink := NewPinSink(mc, "")

	res, err := sink.BulkCreate(context.Background(), testDrafts(250))
	require.NoError(t, err)
	assert.Equal(t, 200, res.Created)
	assert.Len(t, res.FailedIDs, 50)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "records 201-250")
}

func TestPinRecord_OptionalFields(t *testing.T) {
	d := testDrafts(1)[0]
	rec := pinRecord(d)
	assert.NotContains(t, rec, fieldUnit)
	assert.NotContains(t, rec, fieldLatitude)
	assert.NotContains(t, rec, fieldContactEmail)

	d.Address.UnitNumber = "4B"
	d.Coordinate = model.Coordinate{Latitude: 43.65, Longitude: -79.38}
	d.Contact.Email = "jane@example.com"
	d.Contact.Phone = "4165550100"
	rec = pinRecord(d)
	assert.Equal(t, "4B", rec[fieldUnit])
	assert.Equal(t, 43.65, rec[fieldLatitude])
	assert.Equal(t, -79.38, rec[fieldLongitude])
	assert.Equal(t, "jane@example.com", rec[fieldContactEmail])
	assert.Equal(t, "4165550100", rec[fieldContactPhone])
	assert.Equal(t, "pending", rec[fieldStatus])
}

func TestPinSink_Check(t *testing.T) {
	var asked string
	mc := &mockClient{
		fieldsFn: func(_ context.Context, object string) ([]string, error) {
			asked = object
			return []string{"Id", "External_Id__c"}, nil
		},
	}
	require.NoError(t, NewPinSink(mc, "").Check(context.Background()))
	assert.Equal(t, "Pin__c", asked)

	err := NewPinSink(&mockClient{}, "").Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "External_Id__c")

	failing := &mockClient{
		fieldsFn: func(context.Context, string) ([]string, error) { return nil, errors.New("session expired") },
	}
	assert.ErrorContains(t, NewPinSink(failing, "Site_Pin__c").Check(context.Background()), "session expired")
}
