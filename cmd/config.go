package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	configDirName = ".walletctl"
	configName    = "config"
	configType    = "toml"
	envPrefix     = "WALLETCTL"

	defaultServeListen = "127.0.0.1:8787"
)

// loadSettings reads ~/.walletctl/config.toml when present. Every key can be
// overridden from the environment, e.g. WALLETCTL_SESSION_SETTLE_DELAY=1200ms.
func loadSettings() (*viper.Viper, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, configDirName)

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	d := application.DefaultConfig()

	v.SetDefault("session.settle_delay", d.SettleDelay)
	v.SetDefault("session.connect_timeout", d.ConnectTimeout)
	v.SetDefault("session.retry_cooldown", d.RetryCooldown)
	v.SetDefault("session.detect_wait", d.DetectWait)
	v.SetDefault("session.detect_interval", d.DetectInterval)
	v.SetDefault("probe.window", d.ProbeWindow)

	v.SetDefault("reconnect.max_attempts", d.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.window", d.Reconnect.Window)
	v.SetDefault("reconnect.auto_recover", d.Reconnect.AutoRecover)

	v.SetDefault("connect.adapter", d.AdapterName)
	v.SetDefault("connect.permission", string(d.Connect.Permission))
	v.SetDefault("connect.network", d.Connect.Network)
	v.SetDefault("connect.program_ids", d.Connect.ProgramIDs)

	v.SetDefault("mint.program_id", d.Mint.ProgramID)
	v.SetDefault("mint.function", d.Mint.Function)
	v.SetDefault("mint.fee", d.Mint.Fee)
	v.SetDefault("mint.fee_program", d.Mint.FeeProgramID)

	v.SetDefault("install_url", d.InstallURL)
	v.SetDefault("faucet_url", d.FaucetURL)

	v.SetDefault("storage.dir", filepath.Join(configDir, "storage"))
	v.SetDefault("host.fixture", filepath.Join(configDir, "fixture.toml"))
	v.SetDefault("serve.listen", defaultServeListen)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
}

func applicationConfig(v *viper.Viper) (application.Config, error) {
	cfg := application.Config{
		SettleDelay:    v.GetDuration("session.settle_delay"),
		ConnectTimeout: v.GetDuration("session.connect_timeout"),
		RetryCooldown:  v.GetDuration("session.retry_cooldown"),
		DetectWait:     v.GetDuration("session.detect_wait"),
		DetectInterval: v.GetDuration("session.detect_interval"),
		ProbeWindow:    v.GetDuration("probe.window"),
		AdapterName:    v.GetString("connect.adapter"),
		Connect: ports.ConnectOptions{
			Permission: ports.DecryptPermission(v.GetString("connect.permission")),
			Network:    v.GetString("connect.network"),
			ProgramIDs: v.GetStringSlice("connect.program_ids"),
		},
		Reconnect: application.ReconnectConfig{
			MaxAttempts: v.GetInt("reconnect.max_attempts"),
			Window:      v.GetDuration("reconnect.window"),
			AutoRecover: v.GetBool("reconnect.auto_recover"),
		},
		Mint: application.MintConfig{
			ProgramID:    v.GetString("mint.program_id"),
			Function:     v.GetString("mint.function"),
			Fee:          v.GetUint64("mint.fee"),
			FeeProgramID: v.GetString("mint.fee_program"),
		},
		InstallURL: v.GetString("install_url"),
		FaucetURL:  v.GetString("faucet_url"),
	}

	if err := cfg.Validate(); err != nil {
		return application.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds a logger for log.level and log.format ("console" or
// "json") writing to w.
func newLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console", "":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)), nil
}
