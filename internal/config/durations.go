package config

import "time"

// Durations are validated by Validate; these accessors fall back to the
// default when called on an unvalidated value.

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// DebounceDuration returns watch.debounce.
func (w WatchConfig) DebounceDuration() time.Duration {
	return mustDuration(w.Debounce, 100*time.Millisecond)
}

// PollIntervalDuration returns watch.poll_interval.
func (w WatchConfig) PollIntervalDuration() time.Duration {
	return mustDuration(w.PollInterval, 5*time.Second)
}

// HeartbeatDuration returns stream.heartbeat_interval.
func (s StreamConfig) HeartbeatDuration() time.Duration {
	return mustDuration(s.HeartbeatInterval, 25*time.Second)
}

// WriteTimeoutDuration returns stream.write_timeout.
func (s StreamConfig) WriteTimeoutDuration() time.Duration {
	return mustDuration(s.WriteTimeout, 10*time.Second)
}

// TTLDuration returns search.ttl.
func (s SearchConfig) TTLDuration() time.Duration {
	return mustDuration(s.TTL, 5*time.Minute)
}

// FlushIntervalDuration returns telemetry.flush_interval.
func (t TelemetryConfig) FlushIntervalDuration() time.Duration {
	return mustDuration(t.FlushInterval, time.Minute)
}
