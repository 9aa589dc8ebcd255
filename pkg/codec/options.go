package codec

import "fmt"

// EncodeMode selects how frames are coded
type EncodeMode int

const (
	ModeLossless EncodeMode = iota
	ModeProgressiveLossless
	ModeProgressiveVarDCT
)

func (m EncodeMode) String() string {
	switch m {
	case ModeLossless:
		return "Lossless"
	case ModeProgressiveLossless:
		return "ProgressiveLossless"
	case ModeProgressiveVarDCT:
		return "ProgressiveVarDCT"
	default:
		return fmt.Sprintf("EncodeMode(%d)", int(m))
	}
}

// ParseMode maps a mode name to its EncodeMode
func ParseMode(s string) (EncodeMode, bool) {
	for _, m := range []EncodeMode{ModeLossless, ModeProgressiveLossless, ModeProgressiveVarDCT} {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

const (
	DefaultEffort = 7
	MinEffort     = 1
	MaxEffort     = 10
	MaxDistance   = 25
	// CenterAuto lets the encoder use the image center
	CenterAuto = -1
)

// EncodeOptions configure one encode call. Distance only applies to
// ModeProgressiveVarDCT, the center only to the progressive modes.
type EncodeOptions struct {
	Mode          EncodeMode
	Effort        int
	CenterX       int
	CenterY       int
	ProgressiveDC int
	ProgressiveAC bool
	Distance      float32
}

// Lossless options: modular coding, no squeeze
func Lossless(effort int) EncodeOptions {
	return EncodeOptions{Mode: ModeLossless, Effort: effort, CenterX: CenterAuto, CenterY: CenterAuto}
}

// ProgressiveLossless options: squeezed modular coding with groups ordered
// from (centerX, centerY) outwards.
func ProgressiveLossless(effort, centerX, centerY int) EncodeOptions {
	return EncodeOptions{Mode: ModeProgressiveLossless, Effort: effort, CenterX: centerX, CenterY: centerY}
}

// ProgressiveVarDCT options; distance 0 is lossless
func ProgressiveVarDCT(effort int, distance float32, progressiveDC int, progressiveAC bool, centerX, centerY int) EncodeOptions {
	return EncodeOptions{
		Mode:          ModeProgressiveVarDCT,
		Effort:        effort,
		CenterX:       centerX,
		CenterY:       centerY,
		ProgressiveDC: progressiveDC,
		ProgressiveAC: progressiveAC,
		Distance:      distance,
	}
}

// IsLossless reports whether the options produce a bit exact stream
func (o EncodeOptions) IsLossless() bool {
	return o.Mode != ModeProgressiveVarDCT || o.Distance == 0
}
