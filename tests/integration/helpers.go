package integration

import (
	"notifier/internal/config"
	"notifier/internal/logger"
	"notifier/pkg/models"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestTopology(host, exchange, queue string) config.TopologyConfig {
	return config.TopologyConfig{
		Connection: config.ConnectionConfig{
			Details: config.ConnectionDetails{Host: host},
		},
		Exchanges: []config.ExchangeConfig{
			{
				Name:       exchange,
				Type:       "direct",
				RoutingKey: "notify",
				Queues: []config.QueueConfig{
					{
						Name:       queue,
						RoutingKey: "notify",
						ConsumptionOptions: config.ConsumeOptions{
							PrefetchCount: 5,
						},
					},
				},
			},
		},
	}
}

func createTestMessage(action string, note *models.Notification) models.Message {
	return models.Message{
		DataArea: models.DataArea{
			Process:      models.Process{Action: action},
			Notification: note,
		},
		ApplicationArea: models.ApplicationArea{
			DateCreated: "2026-01-15T10:00:00Z",
		},
	}
}
