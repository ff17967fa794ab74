package connect

import (
	"fmt"
	"net/url"
	"strings"
)

// Region selects which Airship data center the consumer streams from.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

const (
	eventStreamURLUS = "https://connect.urbanairship.com/api/events/"
	eventStreamURLEU = "https://connect.asnapieu.com/api/events/"

	complianceStreamURLUS = "https://stream.urbanairship.com/api/events/"
	complianceStreamURLEU = "https://stream.asnapieu.com/api/events/"
)

// resolveEndpoint picks the concrete stream URL. An explicit override wins;
// otherwise the region and credential kind select one of the canonical
// endpoints. Resolution happens once, at consumer construction.
func resolveEndpoint(region Region, compliance bool, override string) (string, error) {
	if override != "" {
		u, err := url.Parse(override)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("invalid base URL %q", override)
		}
		return override, nil
	}
	switch Region(strings.ToUpper(string(region))) {
	case RegionUS, "":
		if compliance {
			return complianceStreamURLUS, nil
		}
		return eventStreamURLUS, nil
	case RegionEU:
		if compliance {
			return complianceStreamURLEU, nil
		}
		return eventStreamURLEU, nil
	}
	return "", fmt.Errorf("unknown region %q", region)
}
