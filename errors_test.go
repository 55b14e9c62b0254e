package walb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("logpack.write", "logpack", CodeChecksum, "payload checksum mismatch")
	assert.Equal(t, "logpack.write", err.Op)
	assert.Equal(t, CodeChecksum, err.Code)
	assert.Equal(t, "walb: logpack[logpack.write]: payload checksum mismatch", err.Error())
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("super.read", "super", CodeFormat, "bad sector_type")
	wrapped := WrapError("redo.run", "redo", inner)

	assert.Equal(t, CodeFormat, wrapped.Code)
	assert.Equal(t, "redo", wrapped.Component)
	assert.ErrorIs(t, wrapped, &Error{Code: CodeFormat})
}

func TestWrapErrorDefaultsToIO(t *testing.T) {
	inner := errors.New("disk yanked")
	wrapped := WrapError("device.write", "device", inner)
	assert.Equal(t, CodeIO, wrapped.Code)
	assert.ErrorIs(t, wrapped, &Error{Code: CodeIO})
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("op", "component", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("snapshot.add", "snapshot", CodeNameInUse, "name already in use")
	assert.True(t, IsCode(err, CodeNameInUse))
	assert.False(t, IsCode(err, CodeNoSpace))
	assert.False(t, IsCode(nil, CodeNameInUse))
}

func TestIsCodeThroughWrap(t *testing.T) {
	inner := NewError("store.alloc", "snapshot", CodeNoSpace, "metadata region full")
	wrapped := WrapError("snapshot.add", "snapshot", inner)
	assert.True(t, IsCode(wrapped, CodeNoSpace))
}
