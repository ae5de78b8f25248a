package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// captureStdout redirects os.Stdout to a pipe for the duration of f and
// returns everything written to it.
func captureStdout(f func()) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	defer r.Close()

	stdout := os.Stdout
	os.Stdout = w
	defer func() {
		os.Stdout = stdout
	}()

	var wg sync.WaitGroup
	wg.Add(1)

	var outputBuffer bytes.Buffer
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&outputBuffer, r)
	}()

	f()

	if err := w.Close(); err != nil {
		return outputBuffer.String(), fmt.Errorf("failed to close pipe writer: %w", err)
	}

	wg.Wait()

	return outputBuffer.String(), nil
}


func TestNewLogger_ConsoleOutput(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsoleLevel = DebugLevel
	opts.FileOutput = false
	opts.ColorConsole = false

	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Sync()

	testMsg := "study hello expanded into 3 steps"
	expectedPrefix := "[INFO]"

	output, err := captureStdout(func() {
		logger.Infof(testMsg)
	})
	if err != nil {
		t.Fatalf("Failed to capture stdout: %v", err)
	}

	if !strings.Contains(output, expectedPrefix) {
		t.Errorf("Console output missing prefix. Got: %q, Expected to contain: %q", output, expectedPrefix)
	}
	if !strings.Contains(output, testMsg) {
		t.Errorf("Console output missing message. Got: %q, Expected to contain: %q", output, testMsg)
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logger-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	logFilePath := filepath.Join(tmpDir, "test_weft.log")
	opts := DefaultOptions()
	opts.FileLevel = InfoLevel
	opts.LogFilePath = logFilePath
	opts.FileOutput = true
	opts.ConsoleOutput = false

	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	testMsg := "step say_hello submitted"
	logger.Infof(testMsg)
	logger.Debugf("this debug message should not be in file")
	logger.Sync()

	content, err := os.ReadFile(logFilePath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, testMsg) {
		t.Errorf("Log file content missing message. Got: %q, Expected to contain: %q", logContent, testMsg)
	}
	if strings.Contains(logContent, "this debug message should not be in file") {
		t.Errorf("Log file contains debug message when FileLevel is Info. Content: %q", logContent)
	}
	if !strings.Contains(logContent, `"level":"INFO"`) {
		t.Errorf("Log file JSON missing level. Got: %q", logContent)
	}
	if !strings.Contains(logContent, `"msg":"step say_hello submitted"`) {
		t.Errorf("Log file JSON missing message field. Got: %q", logContent)
	}
}


func TestNewLogger_ColoredConsoleOutput(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsoleLevel = DebugLevel // Ensure all levels are logged for this test
	opts.FileOutput = false
	opts.ColorConsole = true

	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Sync()

	testCases := []struct {
		level         Level
		logFunc       func(template string, args ...interface{})
		message       string
		expectedColor string
		levelString   string
	}{
		{SuccessLevel, logger.Successf, "step process finished", colorGreen, "[SUCCESS]"},
		{ErrorLevel, logger.Errorf, "step process failed", colorRed, "[ERROR]"},
		{WarnLevel, logger.Warnf, "worker lease about to expire", colorYellow, "[WARN]"},
		{InfoLevel, logger.Infof, "dispatching to redis queue", "", "[INFO]"},
		{DebugLevel, logger.Debugf, "expander pass B produced 3 nodes", colorMagenta, "[DEBUG]"},
	}

	for _, tc := range testCases {
		t.Run(tc.level.String(), func(t *testing.T) {
			output, errCap := captureStdout(func() {
				tc.logFunc(tc.message)
			})
			if errCap != nil {
				t.Fatalf("Failed to capture stdout for %s: %v", tc.level.String(), errCap)
			}

			if !strings.Contains(output, tc.message) {
				t.Errorf("Console output for %s missing message. Got: %q", tc.level.String(), output)
			}

			if !strings.Contains(output, tc.levelString) {
				t.Errorf("Console output for %s missing level string %s. Got: %q", tc.level.String(), tc.levelString, output)
			}

			if tc.expectedColor != "" {
				expectedColoredLevel := tc.expectedColor + tc.levelString + colorReset
				if !strings.Contains(output, expectedColoredLevel) {
					t.Errorf("Console output for %s missing expected color sequence %q. Got: %q", tc.level.String(), expectedColoredLevel, output)
				}
			} else {
				colorsToAvoid := []string{colorRed, colorGreen, colorYellow, colorMagenta, colorCyan}
				for _, c := range colorsToAvoid {
					if strings.Contains(output, c+tc.levelString) {
						t.Errorf("Console output for %s (no color expected for level string) contains color code %q before level. Got: %q", tc.level.String(), c, output)
					}
				}
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsoleLevel = WarnLevel
	opts.FileOutput = false
	opts.ColorConsole = false

	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	defer logger.Sync()

	var output string
	output, err = captureStdout(func() {
		logger.Debugf("debug_test")
		logger.Infof("info_test")
		logger.Successf("success_test")
		logger.Warnf("warn_test")
		logger.Errorf("error_test")
	})
	if err != nil {
		t.Fatalf("captureStdout error: %v", err)
	}

	if strings.Contains(output, "debug_test") {
		t.Error("Console output contains DEBUG message when level is WARN")
	}
	if strings.Contains(output, "success_test") {
		t.Error("Console output contains SUCCESS message when level is WARN (Success is Info by Zap)")
	}
	if strings.Contains(output, "info_test") {
		t.Error("Console output contains INFO message when level is WARN")
	}

	if !strings.Contains(output, "warn_test") {
		t.Error("Console output missing WARN message when level is WARN")
	}
	if !strings.Contains(output, "error_test") {
		t.Error("Console output missing ERROR message when level is WARN")
	}
}

func TestGlobalLogger(t *testing.T) {
	originalGlobalLogger := globalLogger
	originalOnce := once
	defer func() {
		globalLogger = originalGlobalLogger
		once = originalOnce
	}()

	globalLogger = nil
	once = sync.Once{}

	opts := DefaultOptions()
	opts.ConsoleLevel = InfoLevel
	opts.FileOutput = false
	opts.ColorConsole = false
	Init(opts)

	defer func() {
		if err := SyncGlobal(); err != nil {
			t.Errorf("SyncGlobal failed: %v", err)
		}
	}()

	output, err := captureStdout(func() {
		Info("study hello starting")
		Success("study hello finished")
	})
	if err != nil {
		t.Fatalf("captureStdout error: %v", err)
	}

	if !strings.Contains(output, "[INFO] study hello starting") {
		t.Errorf("Global Info() didn't work as expected. Got: %s", output)
	}
	if !strings.Contains(output, "[SUCCESS] study hello finished") {
		t.Errorf("Global Success() didn't work as expected. Got: %s", output)
	}

	secondOpts := DefaultOptions()
	secondOpts.ConsoleLevel = DebugLevel
	Init(secondOpts) // subsequent Init calls are no-ops

	output2, err2 := captureStdout(func() {
		Debug("this should not appear, Init was a no-op")
	})
	if err2 != nil {
		t.Fatalf("captureStdout error: %v", err2)
	}

	if strings.Contains(output2, "this should not appear") {
		t.Error("Global Debug() appeared, meaning Init was called again or level changed unexpectedly.")
	}
}

func TestTimestampFormat(t *testing.T) {
	customFormat := "2006/01/02_15:04:05"
	opts := DefaultOptions()
	opts.ConsoleLevel = InfoLevel
	opts.FileOutput = false
	opts.ColorConsole = false
	opts.TimestampFormat = customFormat

	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	defer logger.Sync()

	output, errCap := captureStdout(func() {
		logger.Infof("worker pool started")
	})
	if errCap != nil {
		t.Fatalf("captureStdout error: %v", errCap)
	}

	re := regexp.MustCompile(`\d{4}/\d{2}/\d{2}_\d{2}:\d{2}:\d{2}`)
	if !re.MatchString(output) {
		t.Errorf("Console output does not contain timestamp in expected format %s. Got: %q", customFormat, output)
	}
}

func TestFailAndFatalLevels(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsoleLevel = InfoLevel
	opts.FileOutput = false
	opts.ColorConsole = false

	t.Run("FailLevelOutput", func(t *testing.T) {
		var buf bytes.Buffer
		fatalCoreCfg := zap.NewProductionEncoderConfig()
		fatalCoreCfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
		fatalCoreCfg.TimeKey = "time"
		fatalEncoder := NewPlainTextConsoleEncoder(fatalCoreCfg, opts)

		fatalLevelEnabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= zapcore.FatalLevel })
		core := zapcore.NewCore(fatalEncoder, zapcore.AddSync(&buf), fatalLevelEnabler)

		// FailLevel goes through zap's Fatal path, which exits the process
		// by default; the fatal hook is swapped for a panic that is
		// recovered below so the output can be inspected.
		tempZapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.WithFatalHook(zapcore.WriteThenPanic))
		tempLogger := &Logger{SugaredLogger: tempZapLogger.Sugar(), opts: opts}

		func() {
			defer func() { _ = recover() }()
			tempLogger.logWithCustomLevel(FailLevel, "task server unreachable")
		}()
		tempLogger.Sync()
		output := buf.String()

		if !strings.Contains(output, "[FAIL]") {
			t.Errorf("FailLevel log output missing [FAIL]. Got: %s", output)
		}
		if !strings.Contains(output, "task server unreachable") {
			t.Errorf("FailLevel log output missing message. Got: %s", output)
		}
	})
}
