package nakama

import (
	"io"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/sirupsen/logrus"
)

// runtimeHook forwards logrus entries to the Nakama runtime logger so app-layer logs land in
// the server log with their fields.
type runtimeHook struct {
	logger runtime.Logger
}

func (h runtimeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h runtimeHook) Fire(entry *logrus.Entry) error {
	l := h.logger
	if len(entry.Data) > 0 {
		fields := make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
		l = l.WithFields(fields)
	}
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		l.Error("%s", entry.Message)
	case logrus.WarnLevel:
		l.Warn("%s", entry.Message)
	case logrus.InfoLevel:
		l.Info("%s", entry.Message)
	default:
		l.Debug("%s", entry.Message)
	}
	return nil
}

// newAppLogger returns a logrus logger whose only sink is the runtime logger.
func newAppLogger(logger runtime.Logger) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	l.AddHook(runtimeHook{logger: logger})
	return l
}
