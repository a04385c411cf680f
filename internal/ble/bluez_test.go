package ble

import "testing"

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath("e0:37:12:ab:cd:ef")
	want := "/org/bluez/hci0/dev_E0_37_12_AB_CD_EF"
	if string(got) != want {
		t.Errorf("deviceObjectPath() = %q, want %q", got, want)
	}
}

func TestMacFromPath(t *testing.T) {
	got := macFromPath("/org/bluez/hci0/dev_E0_37_12_AB_CD_EF")
	if got != "E0:37:12:AB:CD:EF" {
		t.Errorf("macFromPath() = %q, want E0:37:12:AB:CD:EF", got)
	}
}

func TestMacFromPathForeign(t *testing.T) {
	if got := macFromPath("/org/bluez/hci1/dev_E0_37_12_AB_CD_EF"); got != "" {
		t.Errorf("macFromPath(hci1 path) = %q, want empty", got)
	}
	if got := macFromPath("/net/connman/iwd"); got != "" {
		t.Errorf("macFromPath(non-bluez path) = %q, want empty", got)
	}
}

func TestAddressKey(t *testing.T) {
	if addressKey("e0:37:12:ab:cd:ef") != addressKey("E0:37:12:AB:CD:EF") {
		t.Error("addressKey should be case-insensitive")
	}
}
