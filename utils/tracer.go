package utils

import (
	"github.com/sirupsen/logrus"
	. "github.com/storyloop/dailystories/utils/flag"
	Logger "github.com/storyloop/dailystories/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// StartTracer starts the Datadog APM tracer. Call once from main.
func StartTracer() {
	env := "development"
	if !IsDevelopment {
		env = "production"
	}

	tracer.Start(
		tracer.WithService(ServiceName),
		tracer.WithEnv(env),
	)

	Logger.Log.WithFields(
		logrus.Fields{"service": ServiceName, "is_development": IsDevelopment},
	).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	// Datadog tracer
	tracer.Stop()
}
