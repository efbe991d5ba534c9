package salesforce

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/submit"
)

// DefaultPinObject is the custom object pins are inserted into.
const DefaultPinObject = "Pin__c"

// Pin__c field API names.
const (
	fieldExternalID   = "External_Id__c"
	fieldAddress      = "Formatted_Address__c"
	fieldUnit         = "Unit_Number__c"
	fieldStreetNumber = "Street_Number__c"
	fieldStreetName   = "Street_Name__c"
	fieldCity         = "City__c"
	fieldProvince     = "Province__c"
	fieldPostalCode   = "Postal_Code__c"
	fieldLatitude     = "Location__Latitude__s"
	fieldLongitude    = "Location__Longitude__s"
	fieldContactName  = "Contact_Name__c"
	fieldContactEmail = "Contact_Email__c"
	fieldContactPhone = "Contact_Phone__c"
	fieldStatus       = "Status__c"
	fieldCreatedBy    = "Created_By__c"
	fieldSourceFile   = "Source_File__c"
	fieldSourceRow    = "Source_Row__c"
)

// PinSink inserts drafts as Salesforce records. It implements
// submit.BulkCreator.
type PinSink struct {
	client Client
	object string
}

var _ submit.BulkCreator = (*PinSink)(nil)

// NewPinSink returns a sink writing to object, or Pin__c when object is empty.
func NewPinSink(client Client, object string) *PinSink {
	if object == "" {
		object = DefaultPinObject
	}
	return &PinSink{client: client, object: object}
}

// Object returns the target sObject name.
func (s *PinSink) Object() string { return s.object }

// BulkCreate inserts drafts in collections of at most 200 records. A
// collection request that fails outright aborts the call; per-record
// failures are reported in the result.
func (s *PinSink) BulkCreate(ctx context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	var res submit.BulkResult
	for start := 0; start < len(drafts); start += collectionLimit {
		end := min(start+collectionLimit, len(drafts))
		batch := drafts[start:end]

		records := make([]map[string]any, len(batch))
		for i, d := range batch {
			records[i] = pinRecord(d)
		}

		results, err := s.client.Insert(ctx, s.object, records)
		if err != nil {
			if start == 0 {
				return submit.BulkResult{}, err
			}
			// Earlier collections are already committed; report the rest as failed.
			for _, d := range batch {
				res.FailedIDs = append(res.FailedIDs, d.ID)
			}
			res.Errors = append(res.Errors, eris.Wrapf(err, "records %d-%d", start+1, end).Error())
			continue
		}

		for i, d := range batch {
			if i >= len(results) {
				res.FailedIDs = append(res.FailedIDs, d.ID)
				res.Errors = append(res.Errors, fmt.Sprintf("%s: no result returned", d.ID))
				continue
			}
			r := results[i]
			if r.OK {
				res.Created++
				continue
			}
			msg := strings.Join(r.Messages, "; ")
			if msg == "" {
				msg = "insert rejected"
			}
			res.FailedIDs = append(res.FailedIDs, d.ID)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", d.ID, msg))
		}
	}

	if len(res.FailedIDs) > 0 {
		zap.L().Warn("salesforce: records rejected",
			zap.String("object", s.object),
			zap.Int("created", res.Created),
			zap.Int("failed", len(res.FailedIDs)),
		)
	}
	return res, nil
}

// Check verifies the target object is reachable and carries the external ID
// field pins are keyed on.
func (s *PinSink) Check(ctx context.Context) error {
	fields, err := s.client.Fields(ctx, s.object)
	if err != nil {
		return err
	}
	if !slices.Contains(fields, fieldExternalID) {
		return eris.Errorf("salesforce: %s has no %s field", s.object, fieldExternalID)
	}
	return nil
}

func pinRecord(d model.PinDraft) map[string]any {
	rec := map[string]any{
		fieldExternalID:   d.ID,
		fieldAddress:      d.Address.FormattedAddress,
		fieldStreetNumber: d.Address.StreetNumber,
		fieldStreetName:   d.Address.StreetName,
		fieldCity:         d.Address.City,
		fieldProvince:     d.Address.Province,
		fieldPostalCode:   d.Address.PostalCode,
		fieldContactName:  d.Contact.Name,
		fieldStatus:       string(d.Status),
		fieldCreatedBy:    d.CreatedBy,
		fieldSourceFile:   d.SourceFile,
		fieldSourceRow:    d.Row,
	}
	if d.Address.UnitNumber != "" {
		rec[fieldUnit] = d.Address.UnitNumber
	}
	if d.Contact.Email != "" {
		rec[fieldContactEmail] = d.Contact.Email
	}
	if d.Contact.Phone != "" {
		rec[fieldContactPhone] = d.Contact.Phone
	}
	if !d.Coordinate.IsZero() {
		rec[fieldLatitude] = d.Coordinate.Latitude
		rec[fieldLongitude] = d.Coordinate.Longitude
	}
	return rec
}
