package models

// All returns every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Membership{},
		&PaymentEvent{},
		&BroadcastJob{},
		&BroadcastFailure{},
		&BotUser{},
		&ScheduledJob{},
		&Setting{},
	}
}
