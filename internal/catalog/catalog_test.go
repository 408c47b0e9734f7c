package catalog

import "testing"

func TestAll_TwelveEntries(t *testing.T) {
	all, err := All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 12 {
		t.Fatalf("catalog has %d entries, want 12", len(all))
	}
	seen := map[string]bool{}
	for _, m := range all {
		if m.Name == "" || m.Description == "" || m.Size == "" || m.RAM == "" {
			t.Fatalf("incomplete entry: %+v", m)
		}
		if seen[m.Name] {
			t.Fatalf("duplicate name %q", m.Name)
		}
		seen[m.Name] = true
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a, _ := All()
	a[0].Name = "mutated"
	b, _ := All()
	if b[0].Name == "mutated" {
		t.Fatal("All must not expose internal state")
	}
}

func TestLookup(t *testing.T) {
	if m, ok := Lookup("qwen3"); !ok || m.Name != "qwen3" {
		t.Fatalf("lookup qwen3: %+v %v", m, ok)
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("unexpected hit")
	}
}
