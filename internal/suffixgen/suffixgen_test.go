package suffixgen

import "testing"

func TestDeriveSuffix(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"query and fragment", "https://example.com/landing?gclid=abc123&utm=x#section", "gclid=abc123&utm=x"},
		{"query only", "https://example.com/landing?a=1", "a=1"},
		{"no query", "https://example.com/landing", ""},
		{"fragment only", "https://example.com/landing#top", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveSuffix(tc.in)
			if got != tc.want {
				t.Errorf("deriveSuffix(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSyntheticGclidShape(t *testing.T) {
	s := syntheticGclid()
	if len(s) < len("gclid=")+10 {
		t.Fatalf("synthetic gclid too short: %q", s)
	}
	if s[:6] != "gclid=" {
		t.Fatalf("synthetic gclid missing prefix: %q", s)
	}
}

func TestGenerateMockMode(t *testing.T) {
	g := New(nil, func() bool { return true })
	res, err := g.Generate(nil, Params{UserID: "u1", CampaignID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error in mock mode: %v", err)
	}
	if !res.Mock {
		t.Fatalf("expected Mock=true")
	}
	if res.Suffix == "" {
		t.Fatalf("expected non-empty suffix")
	}
}
