package email

import (
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"math/big"
	"net/smtp"
	"strconv"

	"github.com/rs/zerolog"
)

// EmailService defines the interface for email operations
type EmailService interface {
	SendConfirmationEmail(toEmail, toName, token string) error
	SendResetCodeEmail(toEmail, toName, code string) error
	SendApprovalEmail(toEmail, toName string, approved bool) error
}

// SMTPConfig holds configuration for the SMTP server
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	UseTLS    bool
	BaseURL   string // Base URL for the application
}

// EmailServiceImpl implements EmailService
type EmailServiceImpl struct {
	config SMTPConfig
	logger zerolog.Logger
}

// NewEmailService creates a new EmailService
func NewEmailService(config SMTPConfig, logger zerolog.Logger) EmailService {
	return &EmailServiceImpl{
		config: config,
		logger: logger,
	}
}

// SendConfirmationEmail sends the email confirmation link to a newly
// registered user. The token rides in the URL path, matching the
// confirm-email route.
func (s *EmailServiceImpl) SendConfirmationEmail(toEmail, toName, token string) error {
	confirmationURL := fmt.Sprintf("%s/api/v1/auth/confirm-email/%s", s.config.BaseURL, token)

	// Without SMTP credentials the link is only logged (development mode)
	if s.config.Username == "" || s.config.Password == "" {
		s.logger.Warn().
			Str("toEmail", toEmail).
			Str("confirmationURL", confirmationURL).
			Msg("SMTP credentials not configured - confirmation email not sent. Use the URL above for testing.")
		return nil
	}

	subject := "Confirm Your Email Address - Maarif"

	body := fmt.Sprintf(`
		<html>
		<body>
			<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
				<h2 style="color: #333;">Welcome to Maarif!</h2>
				<p>Hello %s,</p>
				<p>Thank you for registering with Maarif. To activate your account, please confirm your email address by clicking the button below:</p>

				<div style="text-align: center; margin: 30px 0;">
					<a href="%s" style="background-color: #4a86e8; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold;">Confirm Email</a>
				</div>

				<p>This confirmation link will expire in 1 hour.</p>

				<p>If you did not register for a Maarif account, please ignore this email.</p>

				<p>Best regards,<br>The Maarif Team</p>
			</div>
		</body>
		</html>
	`, toName, confirmationURL)

	return s.sendHTMLEmail(toEmail, subject, body)
}

// SendResetCodeEmail sends the password reset code to a user
func (s *EmailServiceImpl) SendResetCodeEmail(toEmail, toName, code string) error {
	if s.config.Username == "" || s.config.Password == "" {
		s.logger.Warn().
			Str("toEmail", toEmail).
			Str("resetCode", code).
			Msg("SMTP credentials not configured - reset email not sent. Use the code above for testing.")
		return nil
	}

	subject := "Password Reset Code - Maarif"

	body := fmt.Sprintf(`
		<html>
		<body>
			<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
				<h2 style="color: #333;">Password Reset</h2>
				<p>Hello %s,</p>
				<p>We received a request to reset your password. Use the code below to set a new password:</p>

				<div style="text-align: center; margin: 30px 0;">
					<span style="font-size: 28px; letter-spacing: 8px; font-weight: bold;">%s</span>
				</div>

				<p>This code can only be used once. If you did not request a password reset, please ignore this email.</p>

				<p>Best regards,<br>The Maarif Team</p>
			</div>
		</body>
		</html>
	`, toName, code)

	return s.sendHTMLEmail(toEmail, subject, body)
}

// SendApprovalEmail notifies an instructor about the review decision
func (s *EmailServiceImpl) SendApprovalEmail(toEmail, toName string, approved bool) error {
	if s.config.Username == "" || s.config.Password == "" {
		s.logger.Warn().
			Str("toEmail", toEmail).
			Bool("approved", approved).
			Msg("SMTP credentials not configured - approval email not sent.")
		return nil
	}

	var subject, text string
	if approved {
		subject = "Your Instructor Account Has Been Approved - Maarif"
		text = "Your instructor account has been reviewed and approved. You can now log in and start using Maarif."
	} else {
		subject = "Your Instructor Application - Maarif"
		text = "Unfortunately your instructor application was not approved. If you believe this is a mistake, please contact support."
	}

	body := fmt.Sprintf(`
		<html>
		<body>
			<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
				<h2 style="color: #333;">Instructor Application Update</h2>
				<p>Hello %s,</p>
				<p>%s</p>

				<p>Best regards,<br>The Maarif Team</p>
			</div>
		</body>
		</html>
	`, toName, text)

	return s.sendHTMLEmail(toEmail, subject, body)
}

// sendHTMLEmail sends an HTML email
func (s *EmailServiceImpl) sendHTMLEmail(toEmail, subject, htmlBody string) error {
	auth := smtp.PlainAuth(
		"",
		s.config.Username,
		s.config.Password,
		s.config.Host,
	)

	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	headers["To"] = toEmail
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	message := ""
	for key, value := range headers {
		message += fmt.Sprintf("%s: %s\r\n", key, value)
	}
	message += "\r\n" + htmlBody

	serverAddress := s.config.Host + ":" + strconv.Itoa(s.config.Port)

	if !s.config.UseTLS {
		err := smtp.SendMail(
			serverAddress,
			auth,
			s.config.FromEmail,
			[]string{toEmail},
			[]byte(message),
		)
		if err != nil {
			s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to send email")
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}

	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
	}

	conn, err := tls.Dial("tcp", serverAddress, tlsConfig)
	if err != nil {
		s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to connect to SMTP server")
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create SMTP client")
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if err = client.Auth(auth); err != nil {
		s.logger.Error().Err(err).Msg("SMTP authentication failed")
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err = client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(toEmail); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write email message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return nil
}

// GenerateResetCode returns a random 5-digit password reset code
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return fmt.Sprintf("%05d", n.Int64()), nil
}
