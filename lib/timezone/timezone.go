package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		panic(err)
	}
}

// the portal renders dates in Buenos Aires local time without an offset,
// everything that compares against them must use the same location.
func Now() time.Time {
	return time.Now().In(Location)
}

var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
}

// ParseDate parses the dd/mm/yyyy style dates shown by the portal in the
// portal's timezone.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, Location)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
