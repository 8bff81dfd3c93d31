package utils

import (
	"fmt"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	Logger "github.com/storyloop/dailystories/utils/log"
)

// MetricsClient is a nil-safe dogstatsd wrapper. When the agent is not
// reachable (local dev, CI) every emit is a no-op instead of an error on
// the write path.
type MetricsClient struct {
	inner *statsd.Client
}

func GetMetricsClient() *MetricsClient {
	addr := fmt.Sprintf("%s:%s", os.Getenv("STATSD_HOST"), os.Getenv("STATSD_PORT"))
	client, err := statsd.New(addr, statsd.WithNamespace("dailystories."))
	if err != nil {
		Logger.Log.Warn("statsd client unavailable, metrics disabled: ", err)
		return &MetricsClient{}
	}
	return &MetricsClient{inner: client}
}

func (m *MetricsClient) Incr(name string, tags ...string) {
	if m == nil || m.inner == nil {
		return
	}
	// emission failure must never surface into the write path
	_ = m.inner.Incr(name, tags, 1)
}
