package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments incremented by the auth service.
type Metrics struct {
	Registrations  prometheus.Counter
	Logins         *prometheus.CounterVec
	OTPSent        *prometheus.CounterVec
	TokenRefreshes prometheus.Counter
	PasswordResets prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_registrations_total",
			Help: "Completed registrations (verified and account created).",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		OTPSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_otp_sent_total",
			Help: "One-time codes sent by purpose.",
		}, []string{"purpose"}),
		TokenRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_token_refreshes_total",
			Help: "Successful access-token refreshes.",
		}),
		PasswordResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_password_resets_total",
			Help: "Completed password resets.",
		}),
	}
}
