package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

// NotifyFailure mails the operator who submitted a job that could not produce
// any frames.
func (n *SMTPNotifier) NotifyFailure(_ context.Context, to, jobID, videoKey, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	msg := composeMessage(n.from, to, jobID, videoKey, errorMsg)
	if err := n.send(addr, nil, n.from, []string{to}, msg); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", to),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", to),
		zap.String("job_id", jobID),
	)
	return nil
}

func composeMessage(from, to, jobID, videoKey, errorMsg string) []byte {
	subject := fmt.Sprintf("Frame extraction aborted [Job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"No frames could be extracted from your video.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Video: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Check that the file is a readable video and submit it again.\r\n\r\n"+
			"-- actionframes worker",
		jobID, videoKey, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
