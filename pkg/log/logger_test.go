package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// LoggerTestSuite tests the log package
type LoggerTestSuite struct {
	suite.Suite
	originalLogger zerolog.Logger
	testOutput     *bytes.Buffer
}

// SetupTest runs before each test
func (s *LoggerTestSuite) SetupTest() {
	s.originalLogger = Logger
	s.testOutput = &bytes.Buffer{}
	Logger = newLogger(zerolog.SyncWriter(s.testOutput), zerolog.DebugLevel)
}

// TearDownTest runs after each test
func (s *LoggerTestSuite) TearDownTest() {
	Logger = s.originalLogger
}

// TestGoroutineID tests the goroutine ID extraction
func (s *LoggerTestSuite) TestGoroutineID() {
	id := goroutineID()
	s.NotEmpty(id)
	s.LessOrEqual(len(id), 20)

	if id != "unknown" {
		for _, char := range id {
			s.True(char >= '0' && char <= '9', "Goroutine ID should be numeric or 'unknown'")
		}
	}
	s.Equal(id, goroutineID())
}

// TestLevels tests that every accessor writes with its level and the goroutine hook
func (s *LoggerTestSuite) TestLevels() {
	Debug().Msg("debug test")
	Info().Msg("info test")
	Warn().Msg("warn test")
	Error().Msg("error test")

	output := s.testOutput.String()
	for _, want := range []string{"debug test", "info test", "warn test", "error test", `"goid"`} {
		s.Contains(output, want)
	}
}

// TestLogWithFields tests logging with additional fields
func (s *LoggerTestSuite) TestLogWithFields() {
	Info().Str("path", "/data/report.pdf").Int64("size", 42).Msg("File committed")

	output := s.testOutput.String()
	s.Contains(output, "File committed")
	s.Contains(output, "/data/report.pdf")
	s.Contains(output, `"size":42`)
}

// TestConfigure tests switching level and format
func (s *LoggerTestSuite) TestConfigure() {
	s.NoError(Configure("warn", FormatJSON))
	s.Equal(zerolog.WarnLevel, Logger.GetLevel())

	s.NoError(Configure("DEBUG", FormatConsole))
	s.Equal(zerolog.DebugLevel, Logger.GetLevel())

	s.NoError(Configure("", ""))
	s.Equal(zerolog.InfoLevel, Logger.GetLevel())
}

// TestConfigureInvalid tests that bad settings are rejected
func (s *LoggerTestSuite) TestConfigureInvalid() {
	s.Error(Configure("loud", FormatJSON))
	s.Error(Configure("info", "xml"))
}

// TestConcurrentLogging tests that logging is thread-safe
func (s *LoggerTestSuite) TestConcurrentLogging() {
	numGoroutines := 10
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()
			Info().Int("worker", id).Msg("concurrent log message")
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	lines := strings.Split(strings.TrimSpace(s.testOutput.String()), "\n")
	s.GreaterOrEqual(len(lines), numGoroutines/2)
	s.Contains(s.testOutput.String(), "concurrent log message")
}

// TestSetDebugMode tests the debug switch
func (s *LoggerTestSuite) TestSetDebugMode() {
	Logger = Logger.Level(zerolog.ErrorLevel)
	SetDebugMode()
	s.Equal(zerolog.DebugLevel, Logger.GetLevel())
}

// TestSuite runs the logger test suite
func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
