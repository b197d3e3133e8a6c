package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML reads the two-level mapping config.yaml uses. It is not a YAML
// parser in general: sections at column zero, "key: value" pairs indented
// below them, comments and blank lines ignored.
func parseYAML(r io.Reader, cfg *Config) error {
	sections := map[string]map[string]func(scalar) error{
		"database": {
			"host":     setString(&cfg.Database.Host),
			"port":     setInt(&cfg.Database.Port),
			"user":     setString(&cfg.Database.User),
			"password": setString(&cfg.Database.Password),
			"database": setString(&cfg.Database.Name),
		},
		"rabbitmq": {
			"host":     setString(&cfg.RabbitMQ.Host),
			"port":     setInt(&cfg.RabbitMQ.Port),
			"user":     setString(&cfg.RabbitMQ.User),
			"password": setString(&cfg.RabbitMQ.Password),
		},
		"service": {
			"port": setInt(&cfg.Service.Port),
		},
		"gateway": {
			"queue_capacity": setInt(&cfg.Gateway.QueueCapacity),
		},
		"dispatch": {
			"sweep_interval_seconds":  setInt(&cfg.Dispatch.SweepIntervalSeconds),
			"max_search_wait_seconds": setInt(&cfg.Dispatch.MaxSearchWaitSeconds),
			"max_assign_attempts":     setInt(&cfg.Dispatch.MaxAssignAttempts),
		},
		"jwt": {
			"secret_key":         setString(&cfg.JWT.SecretKey),
			"access_ttl_minutes": setInt(&cfg.JWT.AccessTTLMinutes),
		},
	}

	var (
		current string
		seen    = map[string]bool{}
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'

		if !indented {
			name := strings.TrimSuffix(strings.TrimSpace(line), ":")
			if _, ok := sections[name]; !ok {
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, name)
			}
			if seen[name] {
				return fmt.Errorf("line %d: duplicate %q section", lineNo, name)
			}
			seen[name] = true
			current = name
			continue
		}

		if current == "" {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}

		key, rawVal, ok := strings.Cut(strings.TrimSpace(line), ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}

		set, ok := sections[current][key]
		if !ok {
			return fmt.Errorf("line %d: unknown key in %s: %q", lineNo, current, key)
		}
		if err := set(scalar(rawVal)); err != nil {
			return fmt.Errorf("line %d: %s.%s %w", lineNo, current, key, err)
		}
	}

	return scanner.Err()
}

// scalar is a raw value as it appeared after the colon.
type scalar string

// unquote trims whitespace and strips matching surrounding quotes, so a
// quoted secret_key is stored without them.
func (s scalar) unquote() string {
	v := strings.TrimSpace(string(s))
	if n := len(v); n >= 2 && (v[0] == '"' && v[n-1] == '"' || v[0] == '\'' && v[n-1] == '\'') {
		if unq, err := strconv.Unquote(v); err == nil {
			return unq
		}
		return v[1 : n-1]
	}
	return v
}

func setString(dst *string) func(scalar) error {
	return func(v scalar) error {
		*dst = v.unquote()
		return nil
	}
}

func setInt(dst *int) func(scalar) error {
	return func(v scalar) error {
		n, err := strconv.Atoi(v.unquote())
		if err != nil {
			return fmt.Errorf("must be int: %v", err)
		}
		*dst = n
		return nil
	}
}
