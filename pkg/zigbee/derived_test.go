package zigbee

import "testing"

func TestComputeDerivedSingleHopWhenNoNWKLayer(t *testing.T) {
	f := NewFrame()
	f.Set("mac_dstshortaddr", "0xffff")
	ComputeDerived(f)
	assertField(t, f, "der_tx_type", "Single-Hop Transmission")
}

func TestComputeDerivedSingleHopWhenDstsMatch(t *testing.T) {
	f := NewFrame()
	f.Set("mac_dstshortaddr", "0x1101")
	f.Set("nwk_dstshortaddr", "0x1101")
	f.Set("mac_srcshortaddr", "0x1102")
	f.Set("nwk_srcshortaddr", "0x1102")
	ComputeDerived(f)
	assertField(t, f, "der_tx_type", "Single-Hop Transmission")
	assertField(t, f, "der_same_macnwksrc", "Same MAC/NWK Src: True")
	assertField(t, f, "der_same_macnwkdst", "Same MAC/NWK Dst: True")
}

func TestComputeDerivedMultiHopWhenDstsDiffer(t *testing.T) {
	f := NewFrame()
	f.Set("mac_dstshortaddr", "0xffff")
	f.Set("nwk_dstshortaddr", "0xfffc")
	f.Set("mac_srcextendedaddr", "0x7777770000000001")
	f.Set("nwk_srcextendedaddr", "0x7777770000000001")
	ComputeDerived(f)
	assertField(t, f, "der_tx_type", "Multi-Hop Transmission")
	assertField(t, f, "der_same_macnwksrc", "Same MAC/NWK Src: True")
	assertField(t, f, "der_same_macnwkdst", "Same MAC/NWK Dst: False")
}

func TestComputeDerivedSkipsOnError(t *testing.T) {
	f := NewFrame()
	f.SetError(ErrInvalidLength)
	ComputeDerived(f)
	if f.Has("der_tx_type") {
		t.Fatalf("der_tx_type should not be set once an error is recorded")
	}
}
