package enums

import "fmt"

// BodyPart locates the photographed skin area.
type BodyPart string

const (
	BodyPartFace    BodyPart = "face"
	BodyPartScalp   BodyPart = "scalp"
	BodyPartNeck    BodyPart = "neck"
	BodyPartChest   BodyPart = "chest"
	BodyPartBack    BodyPart = "back"
	BodyPartAbdomen BodyPart = "abdomen"
	BodyPartArm     BodyPart = "arm"
	BodyPartHand    BodyPart = "hand"
	BodyPartLeg     BodyPart = "leg"
	BodyPartFoot    BodyPart = "foot"
	BodyPartOther   BodyPart = "other"
)

var validBodyParts = []BodyPart{
	BodyPartFace,
	BodyPartScalp,
	BodyPartNeck,
	BodyPartChest,
	BodyPartBack,
	BodyPartAbdomen,
	BodyPartArm,
	BodyPartHand,
	BodyPartLeg,
	BodyPartFoot,
	BodyPartOther,
}

// String implements fmt.Stringer.
func (b BodyPart) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BodyPart.
func (b BodyPart) IsValid() bool {
	for _, candidate := range validBodyParts {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBodyPart converts raw input into a BodyPart.
func ParseBodyPart(value string) (BodyPart, error) {
	for _, candidate := range validBodyParts {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid body part %q", value)
}
