package db

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/pin-ingest/internal/model"
)

// SRIDWGS84 is the SRID of every stored point.
const SRIDWGS84 = 4326

// EncodePoint returns c as little-endian EWKB with SRID 4326, or nil for the
// unresolved coordinate so the geometry column stays NULL.
func EncodePoint(c model.Coordinate) ([]byte, error) {
	if c.IsZero() {
		return nil, nil
	}
	if !c.Valid() {
		return nil, eris.Errorf("db: coordinate out of range (%f, %f)", c.Latitude, c.Longitude)
	}

	p := geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude}).SetSRID(SRIDWGS84)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode point")
	}
	return data, nil
}

// DecodePoint is the inverse of EncodePoint. nil decodes to the zero
// coordinate.
func DecodePoint(data []byte) (model.Coordinate, error) {
	if len(data) == 0 {
		return model.Coordinate{}, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "db: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return model.Coordinate{}, eris.Errorf("db: expected point, got %T", g)
	}
	return model.Coordinate{Latitude: p.Y(), Longitude: p.X()}, nil
}
