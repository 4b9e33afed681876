package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/evidential/pkg/config"
)

// captureAlerter records the last alert sent.
type captureAlerter struct {
	subject string
	message string
}

func (c *captureAlerter) Alert(subject, message string) error {
	c.subject = subject
	c.message = message
	return nil
}

func TestNewSelectsAlerter(t *testing.T) {
	_, ok := New(config.AlertConfig{Enabled: false}).(*NoOpAlerter)
	assert.True(t, ok)

	_, ok = New(config.AlertConfig{Enabled: true, SMTPHost: "smtp.example.com"}).(*EmailAlerter)
	assert.True(t, ok)
}

func TestDisabledAlerterIsSilent(t *testing.T) {
	a := NewEmailAlerter(config.AlertConfig{Enabled: false})
	require.NoError(t, a.Alert("subject", "message"))
}

func TestNotifyComplete(t *testing.T) {
	c := &captureAlerter{}
	require.NoError(t, NotifyComplete(c, "run-42", "all", 20, 0.3125, 1700))

	assert.Equal(t, "training run complete", c.subject)
	assert.Contains(t, c.message, "run: run-42")
	assert.Contains(t, c.message, "mode: all")
	assert.Contains(t, c.message, "best metric: 0.3125")
	assert.Contains(t, c.message, "labeled evidence: 1700")
}

func TestNotifyFailure(t *testing.T) {
	c := &captureAlerter{}
	require.NoError(t, NotifyFailure(c, "run-42", errors.New("model backend unreachable")))

	assert.Equal(t, "training run failed", c.subject)
	assert.Contains(t, c.message, "run: run-42")
	assert.Contains(t, c.message, "model backend unreachable")
}
