package instance

import "os"

const defaultID = "local"

// GetID returns the process identifier used in logs. Heroku's DYNO wins over
// ESCROWLEDGER_INSTANCE_ID, which wins over the hostname.
func GetID() string {
	for _, key := range []string{"DYNO", "ESCROWLEDGER_INSTANCE_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
