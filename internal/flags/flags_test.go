package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	s := NewStatic(true, []string{"MailWorker"})
	assert.True(t, s.Enabled())
	assert.True(t, s.EnabledFor("ExportWorker"))
	assert.False(t, s.EnabledFor("MailWorker"))

	off := NewStatic(false, nil)
	assert.False(t, off.Enabled())
	assert.False(t, off.EnabledFor("ExportWorker"))
}
