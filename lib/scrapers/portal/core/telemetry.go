package core

import (
	"casesync-backend/lib/restyutil"
	"casesync-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("casesync.lib.scrapers.portal.core")
var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
