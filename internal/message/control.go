package message

// Control codes. Several source variants use a negative code for a
// "non-blocking end_detection" or a frame_idx+1 token; this implementation
// picks the plain three-value enum and documents it here (spec.md §9 Open
// Questions / DESIGN.md).
const (
	ControlBeginDetection int32 = 0
	ControlEndDetection   int32 = 1
	ControlSetCalibration int32 = 2
)

// Control is a SimpleInt restricted (by convention, not by the type system)
// to one of the Control* codes above.
type Control = SimpleInt

// NewBeginDetection builds a BEGIN_DETECTION control message.
func NewBeginDetection() *Control { return NewSimpleInt(ControlBeginDetection) }

// NewEndDetection builds an END_DETECTION control message.
func NewEndDetection() *Control { return NewSimpleInt(ControlEndDetection) }

// NewSetCalibration builds a SET_CALIBRATION control message.
func NewSetCalibration() *Control { return NewSimpleInt(ControlSetCalibration) }
