package navigation

import (
	"context"
	"errors"
)

// ErrNotConnected is returned while no companion connection is established.
var ErrNotConnected = errors.New("companion app not connected")

// Navigator switches the companion app to a section. It reports false when
// the section could not be shown.
type Navigator interface {
	Navigate(ctx context.Context, sectionID string) (bool, error)
}

// Connector establishes a companion connection. It is called once per
// attempt by Establish.
type Connector interface {
	Connect(ctx context.Context) (Navigator, error)
}

const (
	SectionPoseLibrary  = "pose_library"
	SectionARCorrection = "ar_correction"
	SectionRoutine      = "routine"
	SectionAssistant    = "assistant"
)

var sectionLabels = map[string]string{
	SectionPoseLibrary:  "Pose Library",
	SectionARCorrection: "AR Correction",
	SectionRoutine:      "Routine",
	SectionAssistant:    "Assistant",
}

// SectionLabel is the visible button text for a known section.
func SectionLabel(sectionID string) (string, bool) {
	label, ok := sectionLabels[sectionID]
	return label, ok
}
