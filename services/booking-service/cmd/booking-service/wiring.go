package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/libs/config"
	"github.com/jdtheefirst/creator-hq-sub000/libs/grpcx"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/calendar"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/email"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/pricing"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/storage"
)

func buildSealer(logger *zap.Logger) (storage.TokenSealer, error) {
	key := config.String("CREDENTIAL_SEAL_KEY", "")
	if key == "" {
		logger.Warn("CREDENTIAL_SEAL_KEY not set; calendar tokens are stored unsealed")
		return nil, nil
	}
	return calendar.NewSealer(key)
}

// buildCalendar selects the calendar backend from CALENDAR_PROVIDER.
func buildCalendar(logger *zap.Logger, store calendar.CredentialStore) (calendar.Provider, func(), error) {
	noop := func() {}
	switch strings.ToLower(config.String("CALENDAR_PROVIDER", "none")) {
	case "google":
		cfg := calendar.GoogleConfig{
			ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
			ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
			Endpoint:     config.String("GOOGLE_CALENDAR_ENDPOINT", ""),
		}
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, noop, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for the google calendar provider")
		}
		return calendar.NewGoogleProvider(cfg, store, logger), noop, nil
	case "grpc":
		addr, err := config.RequiredString("CALENDAR_GRPC_ADDR")
		if err != nil {
			return nil, noop, err
		}
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{CallTimeout: config.Duration("CALENDAR_GRPC_TIMEOUT", 5*time.Second)})
		if err != nil {
			return nil, noop, fmt.Errorf("dial calendar sidecar: %w", err)
		}
		return calendar.NewGRPCProvider(conn), func() { _ = conn.Close() }, nil
	case "", "none":
		logger.Info("calendar sync disabled")
		return calendar.NoopProvider{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown CALENDAR_PROVIDER %q", config.String("CALENDAR_PROVIDER", ""))
	}
}

func buildMailer(logger *zap.Logger) email.Sender {
	host := config.String("SMTP_HOST", "")
	if host == "" {
		logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		return email.NoopSender{Logger: logger}
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     host,
		Port:     config.String("SMTP_PORT", "587"),
		Username: config.String("SMTP_USER", ""),
		Password: config.String("SMTP_PASS", ""),
		From:     config.String("EMAIL_FROM", "bookings@localhost"),
	})
}

// buildCalculator applies RATE_<TYPE>_BASE and RATE_<TYPE>_PER_MINUTE overrides.
func buildCalculator() (*pricing.Calculator, error) {
	rates := pricing.DefaultRates()
	for _, st := range model.ServiceTypes {
		rate := rates[st]
		prefix := "RATE_" + strings.ToUpper(string(st))
		if raw := config.String(prefix+"_BASE", ""); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%s_BASE: %w", prefix, err)
			}
			rate.Base = v
		}
		if raw := config.String(prefix+"_PER_MINUTE", ""); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%s_PER_MINUTE: %w", prefix, err)
			}
			rate.PerMinute = v
		}
		rates[st] = rate
	}
	return pricing.NewCalculator(rates)
}

// buildPayments returns nil when Stripe is not configured; payment requests then fail
// with a provider error while the rest of the lifecycle keeps working.
func buildPayments(logger *zap.Logger) (payments.Provider, error) {
	key := config.String("STRIPE_SECRET_KEY", "")
	if key == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; payment requests are disabled")
		return nil, nil
	}
	return payments.NewStripeProvider(payments.StripeConfig{
		SecretKey:  key,
		SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking/cancelled"),
		APIURL:     config.String("STRIPE_API_URL", ""),
	})
}
