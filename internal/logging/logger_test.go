package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	t.Setenv(LevelEnvVar, "")
	t.Cleanup(func() { Initialize("") })

	tests := []struct {
		level         string
		env           string
		enabled       zapcore.Level
		disabled      zapcore.Level
		checkDisabled bool
		silent        bool
	}{
		{level: "", silent: true},
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "WARN", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel, checkDisabled: true},
		{level: "error", enabled: zapcore.ErrorLevel, disabled: zapcore.WarnLevel, checkDisabled: true},
		{level: "", env: "info", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDisabled: true},
		{level: "verbose", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDisabled: true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.env, func(t *testing.T) {
			t.Setenv(LevelEnvVar, tt.env)
			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			core := L().Core()
			if tt.silent {
				if core.Enabled(zapcore.ErrorLevel) {
					t.Error("logger should be silent")
				}
				return
			}
			if !core.Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if tt.checkDisabled && core.Enabled(tt.disabled) {
				t.Errorf("%v should be disabled", tt.disabled)
			}
		})
	}
}
