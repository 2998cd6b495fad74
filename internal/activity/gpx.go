package activity

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"
)

// buildGPX renders a completed session as a GPX 1.1 track, one segment
// per route, elevation attached where the device reported it.
func buildGPX(rec SessionRecord, pts []RoutePoint) ([]byte, error) {
	name := string(rec.Type)
	if rec.StartedAt != nil {
		name = fmt.Sprintf("%s %s", rec.Type, rec.StartedAt.Format("2006-01-02"))
	}

	seg := gpx.GPXTrackSegment{}
	for _, p := range pts {
		gp := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Lat,
				Longitude: p.Lon,
			},
			Timestamp: p.RecordedAt,
		}
		if p.ElevationM != nil {
			gp.Elevation = *gpx.NewNullableFloat64(*p.ElevationM)
		}
		seg.Points = append(seg.Points, gp)
	}

	doc := &gpx.GPX{
		Version: "1.1",
		Creator: "fitness-vibe",
		Name:    name,
		Tracks: []gpx.GPXTrack{{
			Name:     name,
			Segments: []gpx.GPXTrackSegment{seg},
		}},
	}
	return gpx.ToXml(doc, gpx.ToXmlParams{Version: "1.1", Indent: true})
}
