package core

import (
	"regexp"
	"strings"
)

var (
	monitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	hostPattern      = regexp.MustCompile(`(?i)^([a-z0-9:-]+\.?)+$`)
)

const (
	minInterval = 5
	maxInterval = 300
	maxNameLen  = 64
)

// Monitor is a user-defined probe target. Construct via NewMonitor so
// every field is validated and normalized the same way regardless of
// which adapter or storage backend produced it.
type Monitor struct {
	ID          string
	Name        string
	Endpoint    string
	Interval    int
	BodyRegexp  *string
	LastTaskAt  *int64
	LastProbeAt *int64
	CreatedAt   int64
}

// NewMonitor validates and normalizes the supplied fields per spec,
// returning a MonitorAttributeError on the first invalid field. The ID
// may be empty; storage assigns a v4 UUID on create in that case.
func NewMonitor(id, name, endpoint string, interval int, bodyRegexp *string) (*Monitor, error) {
	if id != "" {
		if err := validateID(id); err != nil {
			return nil, err
		}
	}

	if err := validateName(name); err != nil {
		return nil, err
	}

	normalizedEndpoint, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if err := validateInterval(interval); err != nil {
		return nil, err
	}

	if bodyRegexp != nil {
		if _, err := regexp.Compile(*bodyRegexp); err != nil {
			return nil, newAttributeError("invalid body regular expression: %v", err)
		}
	}

	return &Monitor{
		ID:         id,
		Name:       name,
		Endpoint:   normalizedEndpoint,
		Interval:   interval,
		BodyRegexp: bodyRegexp,
	}, nil
}

func validateID(id string) error {
	if !monitorIDPattern.MatchString(id) {
		return newAttributeError(
			"monitor ID can only contain alphanumeric characters, underscores and dashes, up to 128 chars; got %q", id)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return newAttributeError("name cannot be empty")
	}
	if len(name) > maxNameLen {
		return newAttributeError("name cannot be longer than %d characters", maxNameLen)
	}
	return nil
}

func validateInterval(interval int) error {
	if interval < minInterval {
		return newAttributeError("interval must be at least %d seconds", minInterval)
	}
	if interval > maxInterval {
		return newAttributeError("interval must be at most %d seconds", maxInterval)
	}
	return nil
}

// normalizeEndpoint prepends https:// when no scheme is present,
// requires http/https, requires a host shaped like a hostname, and
// lowercases the result.
func normalizeEndpoint(value string) (string, error) {
	if value == "" {
		return "", newAttributeError("endpoint cannot be empty")
	}

	candidate := value
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	u, err := parseEndpoint(candidate)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || !hostPattern.MatchString(u.Host) {
		return "", newAttributeError("endpoint must be a valid URL, got %q", value)
	}

	return strings.ToLower(candidate), nil
}
