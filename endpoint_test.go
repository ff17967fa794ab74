package connect

import "testing"

func TestResolveEndpoint(t *testing.T) {
	cases := []struct {
		region     Region
		compliance bool
		override   string
		want       string
	}{
		{RegionUS, false, "", eventStreamURLUS},
		{"", false, "", eventStreamURLUS},
		{"us", false, "", eventStreamURLUS},
		{RegionEU, false, "", eventStreamURLEU},
		{"eu", false, "", eventStreamURLEU},
		{RegionUS, true, "", complianceStreamURLUS},
		{RegionEU, true, "", complianceStreamURLEU},
		{RegionUS, false, "https://example.com/api/events/", "https://example.com/api/events/"},
	}
	for _, tc := range cases {
		got, err := resolveEndpoint(tc.region, tc.compliance, tc.override)
		if err != nil {
			t.Fatalf("resolve(%q, %v, %q): %v", tc.region, tc.compliance, tc.override, err)
		}
		if got != tc.want {
			t.Fatalf("resolve(%q, %v, %q) = %q want %q", tc.region, tc.compliance, tc.override, got, tc.want)
		}
	}
}

func TestResolveEndpointRejectsUnknownRegion(t *testing.T) {
	if _, err := resolveEndpoint("APAC", false, ""); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestResolveEndpointRejectsBadOverride(t *testing.T) {
	if _, err := resolveEndpoint(RegionUS, false, "not a url"); err == nil {
		t.Fatal("expected error for malformed override")
	}
}
