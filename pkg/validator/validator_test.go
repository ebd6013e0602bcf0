package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelForm struct {
	Name        string  `json:"name" validate:"notblank,max=80"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type patchForm struct {
	Name *string `json:"name" validate:"omitempty,notblank"`
}

func TestStruct_NotBlank(t *testing.T) {
	errs := Struct(channelForm{Name: "   "})
	require.True(t, errs.HasErrors())
	assert.Equal(t, "Name is required", errs["name"])

	errs = Struct(channelForm{Name: "general"})
	assert.False(t, errs.HasErrors())
}

func TestStruct_Max(t *testing.T) {
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'a'
	}
	errs := Struct(channelForm{Name: string(long)})
	assert.Equal(t, "Name must be at most 80 characters", errs["name"])
}

func TestStruct_OptionalPointer(t *testing.T) {
	assert.False(t, Struct(patchForm{}).HasErrors())

	blank := " "
	errs := Struct(patchForm{Name: &blank})
	assert.Equal(t, "Name is required", errs["name"])

	ok := "random"
	assert.False(t, Struct(patchForm{Name: &ok}).HasErrors())
}
