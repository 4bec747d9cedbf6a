package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	ec := cfg.EngineConfig()
	assert.Equal(t, domain.ModeSemiAuto, ec.Mode)
	assert.Equal(t, 1.5, ec.Limits.MinRiskReward)
	assert.Equal(t, 5*time.Minute, ec.ApprovalTimeout)
	assert.NoError(t, ec.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
run_mode = "full"
log_level = "debug"

[autopilot]
mode = "manual"
max_daily_loss = 3.5
approval_timeout = "90s"

[server]
port = 9100
`), 0o600))

	t.Setenv("TRADEPILOT_AUTOPILOT_MODE", "full_auto")
	t.Setenv("TRADEPILOT_REDIS_ADDR", "redis:6380")
	t.Setenv("TRADEPILOT_NOTIFY_EVENTS", "decision:pending, killed")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.RunMode)
	assert.Equal(t, 3.5, cfg.AutoPilot.MaxDailyLoss)
	assert.Equal(t, 90*time.Second, cfg.AutoPilot.ApprovalTimeout.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"decision:pending", "killed"}, cfg.Notify.Events)
	// untouched default survives the merge
	assert.Equal(t, 15.0, cfg.AutoPilot.MaxDrawdown)

	ec := cfg.EngineConfig()
	assert.Equal(t, domain.ModeFullAuto, ec.Mode)
	assert.Equal(t, []domain.EventType{domain.EventDecisionPending, domain.EventKilled}, ec.NotifyEvents)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.RunMode)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.RunMode = "bogus"
	cfg.AutoPilot.Mode = "yolo"
	cfg.Redis.Addr = ""
	cfg.Notify.Events = []string{"decision:teleported"}
	cfg.Notify.TelegramToken = "tok"
	cfg.Rollover.Timezone = "Mars/Olympus"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"config validation failed",
		`unknown run_mode "bogus"`,
		"autopilot: invalid mode",
		"redis: addr must not be empty",
		`notify: unknown event "decision:teleported"`,
		"telegram_chat_id must be set together",
		"rollover: unknown timezone",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateEngineLimits(t *testing.T) {
	cfg := Defaults()
	cfg.AutoPilot.DefaultStopLoss = 1.5
	cfg.AutoPilot.HistoryLimit = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_stop_loss")
	assert.Contains(t, err.Error(), "history_limit")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Audit.SigningPassphrase = "pass"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Audit.SigningPassphrase)
	assert.Empty(t, red.S3.SecretKey)

	red.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
