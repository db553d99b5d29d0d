package config

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Duration is a time.Duration that reads and writes as a string like "30s"
// in YAML and JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var value string

	err := json.Unmarshal(data, &value)
	if err != nil {
		return errors.Wrap(err, "duration must be a string")
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrapf(err, "unable to parse duration %q", value)
	}

	*d = Duration(parsed)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns the value in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
