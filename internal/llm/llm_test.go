package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSentinel(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{
			name: "ordinary text",
			text: "Cozy Living Room Ideas for Every Budget",
			want: nil,
		},
		{
			name: "quota sentinel",
			text: "Insufficient credits",
			want: ErrQuotaExceeded,
		},
		{
			name: "quota sentinel embedded in prose",
			text: "Sorry, insufficient credits remain on this account.",
			want: ErrQuotaExceeded,
		},
		{
			name: "length sentinel",
			text: "PROMPT LENGTH EXCEEDED",
			want: ErrLengthExceeded,
		},
		{
			name: "empty body",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeSentinel(tt.text)

			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	framed := frame("Give me one title.")

	assert.Contains(t, framed, "Give me one title.")
	assert.Contains(t, framed, sentinelQuotaExceeded)
	assert.Contains(t, framed, sentinelLengthExceeded)
	assert.True(t, strings.HasSuffix(framed, "Do not include the prompt in the response."))
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Generate(context.TODO(), "anything")

	assert.ErrorIs(t, err, ErrDisabled)
}
