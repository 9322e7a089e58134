package gls

// Aliases lists the field names under which the carrier payload has been
// observed to carry each piece of event data. The GLS response schema is
// undocumented and drifts between deployments, so the lists are data, not
// logic: new variants are added here (or via config) without touching the
// extraction code. Matches are exact and case-sensitive.
type Aliases struct {
	Text        []string
	Date        []string
	Time        []string
	Address     []string
	City        []string
	CountryName []string
	CountryCode []string
}

func DefaultAliases() Aliases {
	return Aliases{
		Text:        []string{"evtDscr", "evtDsc", "evtDesc", "desc", "event", "message"},
		Date:        []string{"date", "evtDate", "day"},
		Time:        []string{"time", "evtTime", "hour"},
		Address:     []string{"address", "addr"},
		City:        []string{"city", "town", "place"},
		CountryName: []string{"countryName", "country"},
		CountryCode: []string{"countryCode", "cc"},
	}
}
