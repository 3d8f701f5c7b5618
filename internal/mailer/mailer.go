package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

const bodyTemplate = `<html>
<body>
    <h2>Welcome %s!</h2>
    <p>Thank you for registering. Please use the following verification code to complete your registration:</p>
    <h1 style="color: #007bff; font-size: 2em; text-align: center; padding: 20px; background: #f8f9fa; border-radius: 5px;">%s</h1>
    <p>This code will expire in %d days.</p>
    <p>If you didn't request this, please ignore this email.</p>
    <br>
    <p>Best regards,<br>Your Team</p>
</body>
</html>`

// SendVerification delivers the verification code email for one user.
func (m *Mailer) SendVerification(to, name, code string, expiryDays int) error {
	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.From)
	msg.SetHeader("Subject", "Verify Your Account")

	msg.SetBody("text/html", fmt.Sprintf(bodyTemplate, name, code, expiryDays))

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}
