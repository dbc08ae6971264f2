package utils

import (
	"strings"
	"testing"
)

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+14155552671", "14155552671", "+919876543210", " +14155552671 "}
	for _, phone := range valid {
		if !IsValidPhone(phone) {
			t.Errorf("Expected %q to be valid", phone)
		}
	}

	invalid := []string{"", "0123456", "+1-415-555", "phone", "+1 415 555 2671"}
	for _, phone := range invalid {
		if IsValidPhone(phone) {
			t.Errorf("Expected %q to be invalid", phone)
		}
	}
}

func TestIsValidPlate(t *testing.T) {
	valid := []string{"KA01AB1234", "ABC-123", "7X 44910"}
	for _, plate := range valid {
		if !IsValidPlate(plate) {
			t.Errorf("Expected %q to be valid", plate)
		}
	}

	invalid := []string{"", "A", strings.Repeat("X", 17), "plate!"}
	for _, plate := range invalid {
		if IsValidPlate(plate) {
			t.Errorf("Expected %q to be invalid", plate)
		}
	}
}

func TestIsValidIdempotencyKey(t *testing.T) {
	if !IsValidIdempotencyKey("") {
		t.Error("Empty key is allowed, it just disables idempotency")
	}
	if !IsValidIdempotencyKey("retry-20260830-001") {
		t.Error("Expected a short key to be valid")
	}
	if IsValidIdempotencyKey(strings.Repeat("k", IdempotencyKeyMaxLength+1)) {
		t.Error("Expected an oversized key to be invalid")
	}
}

func TestIsValidCoordinates(t *testing.T) {
	valid := [][2]float64{{0, 0}, {12.9716, 77.5946}, {-90, -180}, {90, 180}}
	for _, pair := range valid {
		if !IsValidCoordinates(pair[0], pair[1]) {
			t.Errorf("Expected (%f, %f) to be valid", pair[0], pair[1])
		}
	}

	invalid := [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}}
	for _, pair := range invalid {
		if IsValidCoordinates(pair[0], pair[1]) {
			t.Errorf("Expected (%f, %f) to be invalid", pair[0], pair[1])
		}
	}
}
