package capture

// Default classification sentinels. KeyFlags matches a key frame in
// Frame.Flags. TransientErrorFlags/TransientFlags match the single concealed
// inter frame some decoders emit inside an otherwise healthy stream
// (concealment active + slice errors on a non-key frame). These are tuned
// against observed decoder behaviour, not guaranteed by any library.
const (
	DefaultKeyFlags            uint32 = FrameFlagKey
	DefaultTransientErrorFlags uint32 = DecodeErrorConcealmentActive | DecodeErrorDecodeSlices
	DefaultTransientFlags      uint32 = 0
)

// Sentinels are the flag values the classifier keys on
type Sentinels struct {
	KeyFlags            uint32 `yaml:"key_flags" json:"key_flags"`
	TransientErrorFlags uint32 `yaml:"transient_error_flags" json:"transient_error_flags"`
	TransientFlags      uint32 `yaml:"transient_flags" json:"transient_flags"`
}

// DefaultSentinels returns the built-in sentinel values
func DefaultSentinels() Sentinels {
	return Sentinels{
		KeyFlags:            DefaultKeyFlags,
		TransientErrorFlags: DefaultTransientErrorFlags,
		TransientFlags:      DefaultTransientFlags,
	}
}

// Verdict is the outcome of classifying one frame
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictInvalid
	VerdictTransient
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	case VerdictTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Publish reports whether a frame with this verdict goes into the buffer
func (v Verdict) Publish() bool {
	return v == VerdictValid
}

// Classifier decides per frame whether it may be published. Key frames set
// the state, a transient glitch suppresses only the current frame, anything
// else inherits the state of the last key frame. Not safe for concurrent use.
type Classifier struct {
	s     Sentinels
	valid bool
}

// NewClassifier creates a classifier starting in the valid state
func NewClassifier(s Sentinels) *Classifier {
	return &Classifier{s: s, valid: true}
}

// Classify returns the verdict for f and updates the carried state
func (c *Classifier) Classify(f Frame) Verdict {
	switch {
	case f.DecodeErrorFlags != 0 && f.Flags == c.s.KeyFlags:
		c.valid = false
		return VerdictInvalid
	case f.DecodeErrorFlags == 0 && f.Flags == c.s.KeyFlags:
		c.valid = true
		return VerdictValid
	case f.DecodeErrorFlags == c.s.TransientErrorFlags && f.Flags == c.s.TransientFlags:
		return VerdictTransient
	}

	if c.valid {
		return VerdictValid
	}
	return VerdictInvalid
}
