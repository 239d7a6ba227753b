package notifier

// Config controls the outbound delivery pipeline.
type Config struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	RatePerSec int
}

// Stats is a point-in-time operational snapshot.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
}
