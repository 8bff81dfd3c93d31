package log

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/storyloop/dailystories/utils/dotenv"
	"github.com/storyloop/dailystories/utils/flag"
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// This init function is only for testing cases, where the entry point is not
// main function. Unit test will fail with nil pointer dereference if we don't
// init here.
func init() {
	InitLogger()
}

func InitLogger() {
	logger = logrus.New()

	if os.Getenv("DAILYSTORIES_ENV") == dotenv.ProdEnv {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Send log to stderr, prod formats as json for the log shipper
	logger.SetOutput(os.Stderr)

	Log = logger.WithFields(
		logrus.Fields{"service": flag.ServiceName, "is_development": os.Getenv("DAILYSTORIES_ENV") != dotenv.ProdEnv},
	)
}
