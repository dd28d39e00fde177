package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("150ms", "1.5s") or a bare number meaning seconds (0.1), the
// dialect used by older JSON config files.
type Duration time.Duration

func Seconds(s float64) Duration {
	return Duration(time.Duration(s * float64(time.Second)))
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Seconds(f)
		return nil
	}
	return fmt.Errorf("%w: cannot parse duration %q", ErrInvalid, s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*d = 0
		return nil
	}
	var s string
	if err := value.Decode(&s); err == nil {
		return d.parse(s)
	}
	var f float64
	if err := value.Decode(&f); err == nil {
		*d = Seconds(f)
		return nil
	}
	return fmt.Errorf("%w: cannot parse duration %q", ErrInvalid, value.Value)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*d = Seconds(f)
		return nil
	}
	return fmt.Errorf("%w: cannot parse duration %s", ErrInvalid, data)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
