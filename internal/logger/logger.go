// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var once sync.Once

// Init sets the global level and output once per process. Local runs get a
// console writer; every other environment logs JSON to stdout.
func Init(appName, env, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	once.Do(func() {
		zerolog.SetGlobalLevel(lvl)
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			if i := strings.LastIndex(file, "/"); i >= 0 {
				file = file[i+1:]
			}
			return file + ":" + strconv.Itoa(line)
		}
		log.Logger = New(os.Stdout, appName, env)
		log.Info().Str("level", lvl.String()).Msg("logger initialized")
	})
	return nil
}

func New(out io.Writer, appName, env string) zerolog.Logger {
	if strings.EqualFold(env, "local") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "02-01-2006 15:04:05.000",
			FormatLevel: func(i any) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
		}
	}
	return zerolog.New(out).With().Timestamp().Caller().Str("app", appName).Logger()
}

func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
