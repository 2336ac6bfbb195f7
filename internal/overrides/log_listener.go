package overrides

import (
	"log"

	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/domain"
)

// LogListener records override changes in the log. It stands in for the Publisher when no
// Kafka brokers are configured.
type LogListener struct {
	settings detection.ConfigProvider
	logger   *log.Logger
}

// NewLogListener constructs a LogListener. A nil logger uses the package default prefix.
func NewLogListener(settings detection.ConfigProvider, logger *log.Logger) *LogListener {
	if logger == nil {
		logger = log.New(log.Writer(), "[overrides] ", log.LstdFlags|log.Lshortfile)
	}
	return &LogListener{settings: settings, logger: logger}
}

// OnActivityConfirmed implements detection.Listener.
func (l *LogListener) OnActivityConfirmed(activity domain.ActivityType) {
	l.logger.Printf("override %q applied for %s", l.settings.EnablementConfig().OverrideName(activity), activity)
}

// OnActivityEnded implements detection.Listener.
func (l *LogListener) OnActivityEnded(activity domain.ActivityType) {
	l.logger.Printf("override removed for %s", activity)
}
