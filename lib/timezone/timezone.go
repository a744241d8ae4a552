package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		panic(err)
	}
}

// hltv.org renders every date in the timezone carried by its timezone
// cookie, which defaults to Copenhagen. parsing listing dates in any other
// location shifts late-night results across a day boundary.
func Now() time.Time {
	return time.Now().In(Location)
}
