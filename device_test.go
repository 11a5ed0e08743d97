package main

import (
	"strings"
	"testing"
)

func TestValidateDeviceID(t *testing.T) {
	valid := []string{
		"emulator-5554",
		"1234ABCD",
		"192.168.1.100:5555",
		"adb-ABC123._adb-tls-connect._tcp.",
	}
	for _, id := range valid {
		if err := ValidateDeviceID(id); err != nil {
			t.Errorf("ValidateDeviceID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"foo; rm -rf /",
		"id with spaces",
		"$(whoami)",
		"a`b`",
		strings.Repeat("x", 257),
	}
	for _, id := range invalid {
		if err := ValidateDeviceID(id); err == nil {
			t.Errorf("ValidateDeviceID(%q) = nil, want error", id)
		}
	}
}

func TestParseDeviceList(t *testing.T) {
	out := `List of devices attached
emulator-5554	device product:sdk_gphone64 model:sdk_gphone64_x86_64 device:emu64x transport_id:1
1234ABCD	device usb:1-1 product:raven model:Pixel_6_Pro device:raven transport_id:2
192.168.1.50:5555	device product:raven model:Pixel_6_Pro device:raven transport_id:3
5678EFGH	unauthorized transport_id:4
* daemon started successfully
`
	devices := parseDeviceList(out)
	if len(devices) != 4 {
		t.Fatalf("expected 4 devices, got %d: %+v", len(devices), devices)
	}

	emu := devices[0]
	if emu.ID != "emulator-5554" || emu.State != "device" {
		t.Errorf("unexpected emulator record: %+v", emu)
	}
	if emu.Model != "sdk gphone64 x86 64" {
		t.Errorf("model underscores should become spaces, got %q", emu.Model)
	}

	usb := devices[1]
	if usb.Type != "wired" {
		t.Errorf("usb transport should be wired, got %q", usb.Type)
	}

	wifi := devices[2]
	if wifi.Type != "wireless" {
		t.Errorf("address-form ID should be wireless, got %q", wifi.Type)
	}
	if wifi.WifiAddr != "192.168.1.50:5555" {
		t.Errorf("wireless device should record its address, got %q", wifi.WifiAddr)
	}

	unauth := devices[3]
	if unauth.State != "unauthorized" {
		t.Errorf("expected unauthorized state, got %q", unauth.State)
	}
}

func TestParseDeviceList_Empty(t *testing.T) {
	if devices := parseDeviceList("List of devices attached\n\n"); len(devices) != 0 {
		t.Errorf("expected no devices, got %+v", devices)
	}
	if devices := parseDeviceList(""); len(devices) != 0 {
		t.Errorf("expected no devices from empty output, got %+v", devices)
	}
}

func TestParseDeviceList_MdnsName(t *testing.T) {
	out := "adb-XYZ789._adb-tls-connect._tcp.\tdevice transport_id:5\n"
	devices := parseDeviceList(out)
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if devices[0].Type != "wireless" {
		t.Errorf("mDNS name should be wireless, got %q", devices[0].Type)
	}
}
