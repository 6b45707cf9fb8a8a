package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sgolodetz/smg-comms-go/internal/queue"
)

type appConfig struct {
	listenAddr  string
	logFormat   string
	logLevel    string
	metricsAddr string
	queuePolicy string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", "127.0.0.1:7851", "TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9101); empty disables")
	queuePolicy := flag.String("queue-policy", "discard-oldest", "Per-client frame queue overflow policy: block|discard-oldest|replace-random")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.queuePolicy = *queuePolicy

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if _, err := queuePolicyFromString(c.queuePolicy); err != nil {
		return err
	}
	return nil
}

func queuePolicyFromString(s string) (queue.OverflowPolicy, error) {
	switch s {
	case "block":
		return queue.PolicyBlock, nil
	case "discard-oldest":
		return queue.PolicyDiscardOldest, nil
	case "replace-random":
		return queue.PolicyReplaceRandom, nil
	default:
		return 0, fmt.Errorf("invalid queue-policy: %s", s)
	}
}

// applyEnvOverrides maps MAPPING_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	var firstErr error

	if _, ok := set["listen"]; !ok {
		if v, ok := get("MAPPING_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("MAPPING_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("MAPPING_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MAPPING_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["queue-policy"]; !ok {
		if v, ok := get("MAPPING_SERVER_QUEUE_POLICY"); ok && v != "" {
			c.queuePolicy = v
		}
	}
	return firstErr
}
