package model

// PinStatus is the workflow state of a pin.
type PinStatus string

// PinStatusPending is the only status the ingestion pipeline assigns; a
// reviewer moves pins out of it after correcting low-quality data.
const PinStatusPending PinStatus = "pending"

// NormalizedAddress is the canonical form of one row's location fields.
// UnitNumber is empty when the row carried no unit.
type NormalizedAddress struct {
	FormattedAddress string `json:"formatted_address"`
	UnitNumber       string `json:"unit_number,omitempty"`
	StreetNumber     string `json:"street_number"`
	StreetName       string `json:"street_name"`
	City             string `json:"city"`
	Province         string `json:"province"`
	PostalCode       string `json:"postal_code"`
}

// HasLocation reports whether any locating field is set. FormattedAddress
// always ends with the country, so it says nothing on its own.
func (a NormalizedAddress) HasLocation() bool {
	return a.StreetNumber != "" || a.StreetName != "" || a.City != "" || a.Province != "" || a.PostalCode != ""
}

// Coordinate is a resolved latitude/longitude pair. The zero value means
// "unresolved" and must not be read as a point on the equator.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether c is the unresolved sentinel {0,0}.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Valid reports whether c lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Contact is the reporter metadata attached to a pin.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// PinDraft is a not-yet-persisted pin produced by one input row.
// Drafts are passed by value and never modified after creation.
type PinDraft struct {
	ID         string            `json:"id"`
	CreatedBy  string            `json:"created_by"`
	Address    NormalizedAddress `json:"address"`
	Coordinate Coordinate        `json:"coordinate"`
	Contact    Contact           `json:"contact"`
	Status     PinStatus         `json:"status"`
	SourceFile string            `json:"source_file"`
	Row        int               `json:"row"`
}
