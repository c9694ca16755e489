package devmap

import (
	"testing"

	"github.com/moffa90/go-stm32flash/geometry"
)

func regionNames(regions []Region) []string {
	names := make([]string, 0, len(regions))
	for _, r := range regions {
		names = append(names, r.Name)
	}
	return names
}

func TestRegionsSingleBank(t *testing.T) {
	g, err := geometry.New(geometry.OneMegSingleBank)
	if err != nil {
		t.Fatal(err)
	}

	regions := Regions(g, AllRegions())
	expected := []string{
		RegionControl,
		RegionFlashBank1,
		RegionSystemMemory,
		RegionOTP,
		RegionOptionBytesBank1,
	}

	got := regionNames(regions)
	if len(got) != len(expected) {
		t.Fatalf("Regions() = %v, want %v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("region %d = %q, want %q", i, got[i], expected[i])
		}
	}
}

func TestRegionsDualBank(t *testing.T) {
	g, err := geometry.New(geometry.TwoMegDualBank)
	if err != nil {
		t.Fatal(err)
	}

	regions := Regions(g, AllRegions())

	byName := map[string]Region{}
	for _, r := range regions {
		byName[r.Name] = r
	}

	bank1, ok := byName[RegionFlashBank1]
	if !ok {
		t.Fatal("bank 1 region missing")
	}
	if bank1.Base != 0x08000000 || bank1.Length != 0x100000 {
		t.Errorf("bank 1 region = %v, want 0x08000000+0x100000", bank1)
	}

	bank2, ok := byName[RegionFlashBank2]
	if !ok {
		t.Fatal("bank 2 region missing")
	}
	if bank2.Base != 0x08100000 || bank2.Length != 0x100000 {
		t.Errorf("bank 2 region = %v, want 0x08100000+0x100000", bank2)
	}

	if _, ok := byName[RegionOptionBytesBank2]; !ok {
		t.Error("bank 2 option byte region missing on dual-bank layout")
	}
}

func TestRegionsControlOnly(t *testing.T) {
	g, err := geometry.New(geometry.OneMegDualBank)
	if err != nil {
		t.Fatal(err)
	}

	regions := Regions(g, Selection{})
	if len(regions) != 1 || regions[0].Name != RegionControl {
		t.Fatalf("Regions(empty selection) = %v, want control block only", regionNames(regions))
	}
	if regions[0].Base != 0x40023C00 {
		t.Errorf("control block base = %#x, want 0x40023C00", regions[0].Base)
	}
}
