package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal counts posted notifications by status: "posted",
	// "failed", or "dropped".
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_slack_notifications_total",
			Help: "Total number of Slack notifications by outcome",
		},
		[]string{"status"},
	)
)
