package config

import (
	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/log"
)

// ConfigureLogger applies the settings from the configuration file to the
// logger, setting the log level and format.
func (c Config) ConfigureLogger() *logrus.Entry {
	log.Configure(log.Loggers, c.Log.Format, c.Log.Level)

	return log.Default()
}
