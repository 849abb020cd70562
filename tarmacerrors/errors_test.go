package tarmacerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorParts(t *testing.T) {
	wrapped := fmt.Errorf("line 12: %w", ErrMalformedTrace)

	assert.Equal(t, "T1", GetErrorCode(wrapped))
	assert.Equal(t, "MalformedTrace", GetErrorName(wrapped))
	assert.Equal(t, "Trace line does not follow the TARMAC column grammar.", GetErrorDesc(wrapped))
	assert.Equal(t, "No Error", GetErrorName(nil))
	assert.Equal(t, "", GetErrorCode(fmt.Errorf("plain")))
}
