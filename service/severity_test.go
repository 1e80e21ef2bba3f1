package service

import (
	"testing"
	"video-sentinel/constant"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		eventType   string
		description string
		want        constant.Severity
	}{
		{"loitering", "A child stands near the road", constant.SeverityHigh},
		{"loitering", "Two pedestrians wait at the crossing", constant.SeverityHigh},
		{"fire_or_smoke", "", constant.SeverityHigh},
		{"accident", "Vehicle COLLISION at the junction", constant.SeverityHigh},
		{"fight", "Scuffle between two figures", constant.SeverityMedium},
		{"theft", "", constant.SeverityMedium},
		{"vandalism", "graffiti on the wall", constant.SeverityMedium},
		{"fight", "Injured bystander on the ground", constant.SeverityHigh},
		{"speeding", "car moves quickly", constant.SeverityLow},
		{"loitering", "Two children near the road", constant.SeverityHigh},
		{"loitering", "A group of men fighting", constant.SeverityHigh},
		{"loitering", "someone is fighting", constant.SeverityMedium},
		{"loitering", "injuries visible on the ground", constant.SeverityHigh},
		{"accident", "truck crashed into a pole", constant.SeverityHigh},
		{"intrusion", "an intruder climbs the fence", constant.SeverityMedium},
		{"suspicious", "vandals spray the wall", constant.SeverityMedium},
		{"loitering", "several women wait by the gate", constant.SeverityHigh},
		// short terms only match whole words
		{"parking", "a manhole cover is open", constant.SeverityLow},
		{"parking", "many cars with a hitch", constant.SeverityLow},
		{"loitering", "someone sits in the shade", constant.SeverityLow},
	}

	for _, tt := range tests {
		if got := ClassifySeverity(tt.eventType, tt.description); got != tt.want {
			t.Errorf("ClassifySeverity(%q, %q) = %s, want %s", tt.eventType, tt.description, got, tt.want)
		}
	}
}
