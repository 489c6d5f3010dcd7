// mopchan/utils/security_test.go
package utils

import (
	"net/http/httptest"
	"testing"
)

// TestGenerateTripcode validates that tripcode generation is correct and consistent.
func TestGenerateTripcode(t *testing.T) {
	testCases := []struct {
		name         string
		input        string
		expectedName string
		expectedTrip string
	}{
		{
			name:         "No Tripcode",
			input:        "Anonymous",
			expectedName: "Anonymous",
			expectedTrip: "",
		},
		{
			name:         "Simple Tripcode",
			input:        "user#password",
			expectedName: "user",
			expectedTrip: "!15qascoZut",
		},
		{
			name:         "Empty Name with Tripcode",
			input:        "#password",
			expectedTrip: "!15qascoZut",
		},
		{
			name:         "Empty Tripcode",
			input:        "user#",
			expectedName: "user",
			expectedTrip: "",
		},
		{
			name:         "Name with spaces",
			input:        " new user # trip pass ",
			expectedName: "new user",
			expectedTrip: "!bnfjecec2C",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			displayName, tripcode := GenerateTripcode(tc.input)
			if displayName != tc.expectedName {
				t.Errorf("Expected name to be '%s', but got '%s'", tc.expectedName, displayName)
			}
			if tripcode != tc.expectedTrip {
				t.Errorf("Expected tripcode to be '%s', but got '%s'", tc.expectedTrip, tripcode)
			}
		})
	}
}

// TestGenerateTripcodeDeterministic ensures the same secret always maps to the
// same pseudonym, regardless of the display name in front of it.
func TestGenerateTripcodeDeterministic(t *testing.T) {
	_, first := GenerateTripcode("alice#hunter2")
	_, second := GenerateTripcode("bob#hunter2")
	if first == "" || first != second {
		t.Errorf("Expected identical tripcodes for the same secret, got '%s' and '%s'", first, second)
	}
	if first != "!qonVe3bhT/" {
		t.Errorf("Tripcode derivation changed: got '%s'", first)
	}
}

// TestGetIPAddress verifies proxy header precedence.
func TestGetIPAddress(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	if ip := GetIPAddress(req); ip != "8.8.8.8" {
		t.Errorf("Expected RemoteAddr IP 8.8.8.8, got %s", ip)
	}

	req.Header.Set("X-Real-IP", "9.9.9.9")
	if ip := GetIPAddress(req); ip != "9.9.9.9" {
		t.Errorf("Expected X-Real-IP to win over RemoteAddr, got %s", ip)
	}

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if ip := GetIPAddress(req); ip != "1.2.3.4" {
		t.Errorf("Expected first X-Forwarded-For entry, got %s", ip)
	}

	req.Header.Set("CF-Connecting-IP", "4.3.2.1")
	if ip := GetIPAddress(req); ip != "4.3.2.1" {
		t.Errorf("Expected CF-Connecting-IP to win, got %s", ip)
	}
}
