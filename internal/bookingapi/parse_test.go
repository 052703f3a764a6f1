package bookingapi

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestExtractFirstListPrefersKnownKeys(t *testing.T) {
	raw := `{"code":0,"data":[{"id":1},{"id":2}]}`
	got := extractFirstList(gjson.Parse(raw))
	if !got.IsArray() || len(got.Array()) != 2 {
		t.Fatalf("expected 2-element array, got %v", got)
	}
}

func TestExtractFirstListFallsBackToAnyArray(t *testing.T) {
	raw := `{"code":0,"weirdKey":[{"id":1}]}`
	got := extractFirstList(gjson.Parse(raw))
	if !got.IsArray() || len(got.Array()) != 1 {
		t.Fatalf("expected fallback array, got %v", got)
	}
}

func TestExtractFirstListFromEncodedString(t *testing.T) {
	raw := `{"data":"[{\"id\":1}]"}`
	got := extractFirstList(gjson.Parse(raw))
	if !got.IsArray() || len(got.Array()) != 1 {
		t.Fatalf("expected array decoded from string, got %v", got)
	}
}

func TestFirstStringPicksFirstPresent(t *testing.T) {
	obj := gjson.Parse(`{"venueId":"v1"}`)
	if got := firstString(obj, "id", "venueId", "uuid"); got != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}
}

func TestTruthyVariants(t *testing.T) {
	cases := map[string]bool{
		`true`:        true,
		`false`:       false,
		`1`:           true,
		`0`:           false,
		`"yes"`:       true,
		`"no"`:        false,
		`"available"`: true,
	}
	for raw, want := range cases {
		got := truthy(gjson.Parse(raw))
		if got != want {
			t.Errorf("truthy(%s) = %v, want %v", raw, got, want)
		}
	}
}
