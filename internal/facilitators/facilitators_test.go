package facilitators

import (
	"strings"
	"testing"
)

func TestLookupKnownAddress(t *testing.T) {
	r := New()

	info, ok := r.Lookup("0xdbdf3d8ed80f84c35d01c6c9f9271761bad90ba6")
	if !ok {
		t.Fatal("expected coinbase facilitator to be known")
	}
	if info.ID != "coinbase" || info.Name != "Coinbase" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	r := New()

	upper := strings.ToUpper("0x279e08f711182c79ba6d09669127a426228a4653")
	// Restore the 0x prefix lowercased.
	upper = "0x" + upper[2:]

	info, ok := r.Lookup(upper)
	if !ok {
		t.Fatal("mixed-case address should still match")
	}
	if info.ID != "daydreams" {
		t.Errorf("expected daydreams, got %s", info.ID)
	}
}

func TestLookupUnknownAddress(t *testing.T) {
	r := New()

	if _, ok := r.Lookup("0x0000000000000000000000000000000000000001"); ok {
		t.Error("unknown address should not match")
	}
	if r.Contains("0xdeadbeef") {
		t.Error("garbage address should not match")
	}
}

func TestAddressesCoverAllProviders(t *testing.T) {
	r := New()

	want := len(coinbaseAddrs) + len(daydreamsAddrs) + len(thirdwebAddrs) + len(openx402Addrs)
	if r.Len() != want {
		t.Errorf("expected %d addresses, got %d", want, r.Len())
	}
	if len(r.Addresses()) != want {
		t.Errorf("Addresses() returned %d entries, want %d", len(r.Addresses()), want)
	}

	providers := map[string]bool{}
	for _, a := range r.Addresses() {
		info, ok := r.Lookup(a)
		if !ok {
			t.Fatalf("address %s from Addresses() not resolvable", a)
		}
		providers[info.ID] = true
	}
	for _, id := range []string{"coinbase", "daydreams", "thirdweb", "openx402"} {
		if !providers[id] {
			t.Errorf("provider %s missing from registry", id)
		}
	}
}
