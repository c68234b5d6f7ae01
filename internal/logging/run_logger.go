// Package logging manages per-run log files for pipeline invocations.
// Global structured logging goes through zerolog; the RunLogger captures the
// full trace of a single aggregation run, including raw prompts and model
// responses, into one file under run_logs/.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger manages logging for a single aggregation run.
type RunLogger struct {
	runID     string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
	echo      bool // mirror entries to stdout
}

var (
	currentLogger *RunLogger
	loggerMutex   sync.Mutex
)

// Setup configures the global zerolog logger. Verbose switches the level to
// debug and enables console formatting.
func Setup(verbose bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// StartRunLogging initializes logging for a new aggregation run. The previous
// run's logger, if still open, is closed first.
func StartRunLogging(runID string, echo bool) (*RunLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if currentLogger != nil {
		currentLogger.close()
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join("run_logs", fmt.Sprintf("run_%s_%s.log", runID, timestamp))

	if err := os.MkdirAll("run_logs", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &RunLogger{
		runID:     runID,
		logFile:   logFile,
		startTime: time.Now(),
		echo:      echo,
	}
	currentLogger = logger

	logger.Log("Run %s started at %s", runID, logger.startTime.Format(time.RFC3339))
	return logger, nil
}

// GetCurrentLogger returns the active run logger, or nil outside a run.
func GetCurrentLogger() *RunLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// Log writes a formatted message with timestamp and elapsed time.
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}

	elapsed := time.Since(r.startTime).Round(time.Millisecond)
	message := fmt.Sprintf("[%s] [+%v] %s\n",
		time.Now().Format("15:04:05.000"), elapsed, fmt.Sprintf(format, args...))
	r.logFile.WriteString(message)
	r.logFile.Sync()

	if r.echo {
		fmt.Print("[RUN LOG] " + message)
	}
}

// LogSection writes a section header to the log.
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}
	separator := strings.Repeat("=", 80)
	r.Log(separator)
	r.Log("= %s", title)
	r.Log(separator)
}

// LogError logs an error with its context.
func (r *RunLogger) LogError(context string, err error) {
	if r == nil {
		return
	}
	r.Log("ERROR in %s: %v", context, err)
}

// LogPrompt logs a full model prompt verbatim.
func (r *RunLogger) LogPrompt(stage, model, prompt string) {
	if r == nil {
		return
	}
	r.LogSection(fmt.Sprintf("MODEL REQUEST - %s", stage))
	r.Log("Model: %s", model)
	r.Log("Prompt length: %d characters", len(prompt))
	r.writeRaw(prompt)
}

// LogResponse logs a raw model response verbatim.
func (r *RunLogger) LogResponse(stage, response string) {
	if r == nil {
		return
	}
	r.LogSection(fmt.Sprintf("MODEL RESPONSE - %s", stage))
	r.Log("Response length: %d characters", len(response))
	r.writeRaw(response)
}

func (r *RunLogger) writeRaw(content string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.logFile == nil {
		return
	}
	r.logFile.WriteString(content + "\n")
	r.logFile.Sync()
}

// Close finishes the run log, recording the total duration.
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	r.Log("Run %s finished (total duration: %v)", r.runID, time.Since(r.startTime).Round(time.Millisecond))
	r.close()
	if currentLogger == r {
		currentLogger = nil
	}
}

func (r *RunLogger) close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.logFile != nil {
		r.logFile.Close()
		r.logFile = nil
	}
}
