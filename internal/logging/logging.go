package logging

import "go.uber.org/zap"

// New returns a development logger for APP_ENV=development and a JSON
// production logger otherwise.
func New(appEnv, service string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if appEnv == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service), zap.String("env", appEnv)), nil
}
