package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# fileshare configuration file
#
# Every value can be overridden with an environment variable named
# FILESHARE_<SECTION>_<KEY>, e.g. FILESHARE_ADAPTERS_FILESHARE_PORT=3301.
# Durations use Go syntax: 500ms, 30s, 5m.`

// InitConfig writes a sample configuration file to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := RenderConfig(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// RenderConfig renders cfg as commented YAML that Load accepts.
func RenderConfig(cfg *Config) ([]byte, error) {
	fs := cfg.Adapters.Fileshare

	root, err := mapping(
		field{"logging", nil, "Log output", mustMapping(
			field{"level", cfg.Logging.Level, "DEBUG, INFO, WARN or ERROR", nil},
			field{"format", cfg.Logging.Format, "text or json", nil},
			field{"output", cfg.Logging.Output, "stdout, stderr or a file path", nil},
		)},
		field{"server", nil, "Server-wide settings", mustMapping(
			field{"shutdown_timeout", duration(cfg.Server.ShutdownTimeout), "", nil},
			field{"metrics", nil, "Prometheus endpoint", mustMapping(
				field{"enabled", cfg.Server.Metrics.Enabled, "", nil},
				field{"bind_address", cfg.Server.Metrics.BindAddress, "", nil},
				field{"port", cfg.Server.Metrics.Port, "", nil},
			)},
		)},
		field{"storage", nil, "Shared directory tree; clients can never reach outside it", mustMapping(
			field{"root", cfg.Storage.Root, "", nil},
			field{"gc", nil, "Removes upload temp files orphaned by a crash", mustMapping(
				field{"enabled", cfg.Storage.GC.Enabled, "", nil},
				field{"interval", duration(cfg.Storage.GC.Interval), "", nil},
				field{"min_age", duration(cfg.Storage.GC.MinAge), "Must exceed adapters.fileshare.transfer_timeout", nil},
				field{"dry_run", cfg.Storage.GC.DryRun, "", nil},
			)},
		)},
		field{"adapters", nil, "Protocol adapters", mustMapping(
			field{"fileshare", nil, "", mustMapping(
				field{"enabled", fs.Enabled, "", nil},
				field{"bind_address", fs.BindAddress, "Empty listens on all interfaces", nil},
				field{"port", fs.Port, "", nil},
				field{"max_connections", fs.MaxConnections, "0 means unlimited", nil},
				field{"accept_rate", fs.AcceptRate, "New connections per second, 0 disables throttling", nil},
				field{"accept_burst", fs.AcceptBurst, "", nil},
				field{"handshake_token", fs.HandshakeToken, "First frame every client must send", nil},
				field{"poll_interval", duration(fs.PollInterval), "How often idle sessions check for shutdown", nil},
				field{"idle_timeout", duration(fs.IdleTimeout), "Closes sessions idle this long, 0 keeps them open", nil},
				field{"transfer_timeout", duration(fs.TransferTimeout), "Bounds each socket read or write inside a command", nil},
				field{"shutdown_timeout", duration(fs.ShutdownTimeout), "", nil},
				field{"max_upload_size", fs.MaxUploadSize, "Bytes, 0 means unlimited", nil},
				field{"metrics_log_interval", duration(fs.MetricsLogInterval), "Periodic session count log line, negative disables it", nil},
			)},
		)},
	)
	if err != nil {
		return nil, err
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: configHeader,
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return buf.Bytes(), nil
}

// field is one key of a rendered mapping. Exactly one of value and node is set.
type field struct {
	key     string
	value   any
	comment string
	node    *yaml.Node
}

func mapping(fields ...field) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.key, HeadComment: f.comment}

		value := f.node
		if value == nil {
			value = &yaml.Node{}
			if err := value.Encode(f.value); err != nil {
				return nil, fmt.Errorf("failed to render %s: %w", f.key, err)
			}
		}
		n.Content = append(n.Content, key, value)
	}
	return n, nil
}

// mustMapping is mapping for scalar values that always encode.
func mustMapping(fields ...field) *yaml.Node {
	n, err := mapping(fields...)
	if err != nil {
		panic(err)
	}
	return n
}

func duration(d time.Duration) string {
	return d.String()
}
