package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{"pending to accepted", RequestStatusPending, RequestStatusAccepted, true},
		{"pending to cancelled", RequestStatusPending, RequestStatusCancelled, true},
		{"pending to expired", RequestStatusPending, RequestStatusExpired, true},
		{"accepted to on_the_way", RequestStatusAccepted, RequestStatusOnTheWay, true},
		{"on_the_way to arrived", RequestStatusOnTheWay, RequestStatusArrived, true},
		{"arrived to completed", RequestStatusArrived, RequestStatusCompleted, true},
		{"pending to on_the_way skips acceptance", RequestStatusPending, RequestStatusOnTheWay, false},
		{"arrived to cancelled", RequestStatusArrived, RequestStatusCancelled, false},
		{"accepted back to pending", RequestStatusAccepted, RequestStatusPending, false},
		{"completed to cancelled", RequestStatusCompleted, RequestStatusCancelled, false},
		{"expired to accepted", RequestStatusExpired, RequestStatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []RequestStatus{RequestStatusCompleted, RequestStatusCancelled, RequestStatusExpired} {
		if !status.IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
		if len(AllowedTransitions[status]) != 0 {
			t.Errorf("%s should have no outgoing transitions", status)
		}
	}

	for _, status := range []RequestStatus{RequestStatusPending, RequestStatusAccepted, RequestStatusOnTheWay, RequestStatusArrived} {
		if status.IsTerminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestSeverityIsValid(t *testing.T) {
	for _, severity := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium} {
		if !severity.IsValid() {
			t.Errorf("%s should be valid", severity)
		}
	}
	if Severity("low").IsValid() {
		t.Error("unknown severity should be invalid")
	}
	if Severity("").IsValid() {
		t.Error("empty severity should be invalid")
	}
}

func TestCandidateFor(t *testing.T) {
	known := primitive.NewObjectID()
	request := &TowRequest{
		Candidates: []Candidate{
			{ProviderID: primitive.NewObjectID(), Status: CandidateStatusRejected},
			{ProviderID: known, Status: CandidateStatusNotified},
		},
	}

	candidate := request.CandidateFor(known)
	if candidate == nil {
		t.Fatal("Expected candidate for known provider")
	}
	if candidate.Status != CandidateStatusNotified {
		t.Errorf("Expected notified status, got %s", candidate.Status)
	}

	if request.CandidateFor(primitive.NewObjectID()) != nil {
		t.Error("Expected nil for a provider never notified")
	}
}

func TestOutstandingCandidates(t *testing.T) {
	request := &TowRequest{
		Candidates: []Candidate{
			{Status: CandidateStatusNotified},
			{Status: CandidateStatusRejected},
			{Status: CandidateStatusNotified},
			{Status: CandidateStatusTimedOut},
		},
	}

	if got := request.OutstandingCandidates(); got != 2 {
		t.Errorf("OutstandingCandidates() = %d, want 2", got)
	}
}

func TestLocationRoundTrip(t *testing.T) {
	loc := NewLocation(12.9716, 77.5946)

	if loc.Type != "Point" {
		t.Errorf("Expected GeoJSON Point, got %s", loc.Type)
	}
	if loc.Latitude() != 12.9716 || loc.Longitude() != 77.5946 {
		t.Errorf("Coordinates round trip failed: lat=%f lng=%f", loc.Latitude(), loc.Longitude())
	}
	if !loc.HasCoordinates() {
		t.Error("Expected HasCoordinates to be true")
	}

	var empty Location
	if empty.HasCoordinates() {
		t.Error("Zero value location should not report coordinates")
	}
}

func TestProviderEligible(t *testing.T) {
	provider := &Provider{
		TowingCapable: true,
		Available:     true,
		Status:        ProviderStatusOnline,
	}
	if !provider.Eligible() {
		t.Error("Online, available, towing-capable provider should be eligible")
	}

	busy := *provider
	busy.Status = ProviderStatusBusy
	if busy.Eligible() {
		t.Error("Busy provider should not be eligible")
	}

	unavailable := *provider
	unavailable.Available = false
	if unavailable.Eligible() {
		t.Error("Unavailable provider should not be eligible")
	}
}
