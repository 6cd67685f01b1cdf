package transcriber

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyShapeErrors(t *testing.T) {
	shapeMessages := []string{
		"cannot reshape tensor of 0 elements",
		"RuntimeError: Sizes of tensors must match",
		"shape '[1, 80, 3000]' is invalid: dimension out of range",
		"mat1 and mat2 shapes cannot be multiplied",
		"size mismatch for encoder.conv1.weight",
	}

	for _, msg := range shapeMessages {
		classified := Classify(errors.New(msg))
		require.NotNil(t, classified, msg)
		assert.Equal(t, KindShape, classified.Kind, msg)
		assert.True(t, IsShapeError(classified), msg)
	}
}

func TestClassifyOtherErrors(t *testing.T) {
	otherMessages := []string{
		"CUDA out of memory",
		"file not found",
		"unexpected EOF while decoding",
	}

	for _, msg := range otherMessages {
		classified := Classify(errors.New(msg))
		require.NotNil(t, classified, msg)
		assert.Equal(t, KindOther, classified.Kind, msg)
		assert.False(t, IsShapeError(classified), msg)
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestIsShapeErrorThroughWrapping(t *testing.T) {
	inner := Classify(errors.New("tensor dimension mismatch"))
	wrapped := fmt.Errorf("strategy aggressive: %w", inner)
	assert.True(t, IsShapeError(wrapped))

	assert.False(t, IsShapeError(errors.New("tensor")), "plain errors carry no kind")
}

func TestEngineErrorMessage(t *testing.T) {
	err := &EngineError{Kind: KindShape, Err: errors.New("boom")}
	assert.Contains(t, err.Error(), "shape")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "boom", err.Unwrap().Error())
}
