package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func frameFlags(decodeErr, flags uint32) Frame {
	return Frame{DecodeErrorFlags: decodeErr, Flags: flags}
}

func TestClassifierTable(t *testing.T) {
	tests := []struct {
		name  string
		steps [][2]uint32
		want  []Verdict
	}{
		{
			name:  "clean key frame publishes",
			steps: [][2]uint32{{0, 2}},
			want:  []Verdict{VerdictValid},
		},
		{
			name:  "corrupt key frame is invalid",
			steps: [][2]uint32{{7, 2}},
			want:  []Verdict{VerdictInvalid},
		},
		{
			name:  "corrupt key frame poisons following inter frames",
			steps: [][2]uint32{{0, 2}, {1, 2}, {0, 0}, {0, 0}},
			want:  []Verdict{VerdictValid, VerdictInvalid, VerdictInvalid, VerdictInvalid},
		},
		{
			name:  "next clean key frame recovers",
			steps: [][2]uint32{{1, 2}, {0, 0}, {0, 2}, {0, 0}},
			want:  []Verdict{VerdictInvalid, VerdictInvalid, VerdictValid, VerdictValid},
		},
		{
			name:  "transient glitch skips one frame only",
			steps: [][2]uint32{{0, 2}, {12, 0}, {0, 0}},
			want:  []Verdict{VerdictValid, VerdictTransient, VerdictValid},
		},
		{
			name:  "transient glitch keeps invalid state",
			steps: [][2]uint32{{4, 2}, {12, 0}, {0, 0}},
			want:  []Verdict{VerdictInvalid, VerdictTransient, VerdictInvalid},
		},
		{
			name:  "other error combinations carry state",
			steps: [][2]uint32{{0, 2}, {4, 0}, {8, 1}},
			want:  []Verdict{VerdictValid, VerdictValid, VerdictValid},
		},
		{
			name:  "initial state is valid",
			steps: [][2]uint32{{0, 0}},
			want:  []Verdict{VerdictValid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(DefaultSentinels())
			var got []Verdict
			for _, s := range tt.steps {
				got = append(got, c.Classify(frameFlags(s[0], s[1])))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifierCustomSentinels(t *testing.T) {
	c := NewClassifier(Sentinels{KeyFlags: 3, TransientErrorFlags: 1, TransientFlags: 4})

	assert.Equal(t, VerdictValid, c.Classify(frameFlags(0, 3)))
	assert.Equal(t, VerdictTransient, c.Classify(frameFlags(1, 4)))
	// flag 2 is no longer a key frame under these sentinels
	assert.Equal(t, VerdictValid, c.Classify(frameFlags(7, 2)))
	assert.Equal(t, VerdictInvalid, c.Classify(frameFlags(7, 3)))
}

func TestVerdictPublish(t *testing.T) {
	assert.True(t, VerdictValid.Publish())
	assert.False(t, VerdictInvalid.Publish())
	assert.False(t, VerdictTransient.Publish())
	assert.Equal(t, "transient", VerdictTransient.String())
}
