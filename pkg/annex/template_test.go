package annex

import "testing"

func paramsByKey(params []Param) map[string]Param {
	m := make(map[string]Param, len(params))
	for _, p := range params {
		m[p.Key] = p
	}
	return m
}

func TestTemplateParamKeys(t *testing.T) {
	keys := TemplateParamKeys()

	want := 9 + 3*MaxResourcePools
	if len(keys) != want {
		t.Fatalf("TemplateParamKeys() has %d keys, want %d", len(keys), want)
	}

	seen := make(map[string]bool)
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
	for _, k := range []string{ParamLeaseMinutes, "ImageID1", "SpotPrice8"} {
		if !seen[k] {
			t.Fatalf("schema missing key %q", k)
		}
	}
}

func TestBuildCreateParams(t *testing.T) {
	spec := validStackSpec()
	spec.Pools = []PoolSpec{
		{ImageID: "img-1", InstanceType: "m5.large"},
		{ImageID: "img-2", InstanceType: "m5.xlarge", SpotPrice: "0.20"},
	}
	spec.CredentialLocation = "s3://c/credential"
	spec.LeaseMinutes = 180

	m := paramsByKey(BuildCreateParams(spec))

	if got := m[ParamLeaseMinutes].Value; got != "180" {
		t.Fatalf("LeaseMinutes = %q, want 180", got)
	}
	if got := m[ParamCredentialURL].Value; got != "s3://c/credential" {
		t.Fatalf("CredentialURL = %q", got)
	}
	if _, ok := m[ParamConfigURL]; ok {
		t.Fatal("ConfigURL bound without a staged config")
	}
	if got := m["InstanceType2"].Value; got != "m5.xlarge" {
		t.Fatalf("InstanceType2 = %q", got)
	}
	if got := m["SpotPrice2"].Value; got != "0.20" {
		t.Fatalf("SpotPrice2 = %q", got)
	}

	// On-demand pools and unused slots fall back to template defaults.
	if _, ok := m["SpotPrice1"]; ok {
		t.Fatal("SpotPrice1 bound for an on-demand pool")
	}
	if _, ok := m["ImageID3"]; ok {
		t.Fatal("ImageID3 bound for an unused pool slot")
	}

	for _, p := range BuildCreateParams(spec) {
		if p.UsePrevious {
			t.Fatalf("create param %q marked UsePrevious", p.Key)
		}
	}
}

func TestBuildLeaseParams(t *testing.T) {
	params := BuildLeaseParams(45)

	if len(params) != len(TemplateParamKeys()) {
		t.Fatalf("lease update covers %d params, want the full schema of %d",
			len(params), len(TemplateParamKeys()))
	}

	for _, p := range params {
		if p.Key == ParamLeaseMinutes {
			if p.UsePrevious || p.Value != "45" {
				t.Fatalf("LeaseMinutes = %+v, want value 45", p)
			}
			continue
		}
		if !p.UsePrevious {
			t.Fatalf("param %q restated with a value in a lease-only update", p.Key)
		}
	}
}
