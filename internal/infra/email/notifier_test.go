package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyFailureSendsMessage(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 1025, "noreply@frames.local", zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	require.NoError(t, n.NotifyFailure(context.Background(), "ops@frames.local", "job-1", "videos/a.mp4", "source unreadable"))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"ops@frames.local"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Frame extraction aborted [Job job-1]")
	assert.Contains(t, string(gotMsg), "Video: videos/a.mp4")
}

func TestNotifyFailureWrapsSendError(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 1025, "noreply@frames.local", zap.NewNop())
	boom := errors.New("connection refused")
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := n.NotifyFailure(context.Background(), "ops@frames.local", "job-1", "a.mp4", "x")
	assert.ErrorIs(t, err, boom)
}
