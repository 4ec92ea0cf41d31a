package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/previmed/visit-assistant/internal/config"
	"github.com/previmed/visit-assistant/internal/notify"
	"github.com/previmed/visit-assistant/pkg/logging"
)

// BuildVisitNotifier selects the email provider for dispatch notifications.
// It returns nil when notifications are disabled or misconfigured.
func BuildVisitNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.VisitNotifier {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sg != nil {
			sender = sg
		} else {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; notifications disabled")
		}
	case "ses":
		if awsCfg == nil {
			logger.Warn("EMAIL_PROVIDER=ses but AWS config is unavailable; notifications disabled")
			break
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "stub":
		sender = notify.NewStubEmailSender(logger)
	case "", "none":
		return nil
	default:
		logger.Warn("unknown email provider; notifications disabled", "provider", cfg.EmailProvider)
		return nil
	}

	notifier := notify.NewVisitNotifier(sender, cfg.NotifyEmailTo, logger)
	if notifier == nil {
		logger.Info("visit notifications disabled", "provider", cfg.EmailProvider)
		return nil
	}
	logger.Info("visit notifications enabled", "provider", cfg.EmailProvider)
	return notifier
}
