package cache

type Option func(*StateCache)

func WithIncidentCapacity(n int) Option {
	return func(c *StateCache) { c.incidentCap = n }
}

func WithPitCapacity(n int) Option {
	return func(c *StateCache) { c.pitCap = n }
}

func WithChatCapacity(n int) Option {
	return func(c *StateCache) { c.chatCap = n }
}

func WithSessionHistoryCapacity(n int) Option {
	return func(c *StateCache) { c.sessionHistoryCap = n }
}
