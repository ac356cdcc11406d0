package logger

import (
	"encoding/json"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// New builds a console logger writing to stderr and, optionally, to a log file.
func New(level string, file string) (*zap.SugaredLogger, error) {
	// Colored levels only when nothing but a terminal receives the output.
	levelEncoder := "capital"
	if len(file) == 0 && isatty.IsTerminal(os.Stderr.Fd()) {
		levelEncoder = "capitalColor"
	}

	var cfg zap.Config
	cfgJSON := []byte(`{
		"development": false,
		"level": "` + level + `",
		"encoding": "console",
		"outputPaths": ["stderr"],
		"errorOutputPaths": ["stderr"],
		"encoderConfig": {
			"timeKey": "timestamp",
			"timeEncoder": "iso8601",
			"messageKey": "message",
			"levelKey": "level",
			"levelEncoder": "` + levelEncoder + `"
		}
	}`)

	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, errors.Wrap(err, "json unmarshalling error")
	}

	if len(file) > 0 {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "logger building error")
	}

	return logger.Sugar(), nil
}
