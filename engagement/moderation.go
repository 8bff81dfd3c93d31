package engagement

import (
	"fmt"
	"os"
	"strconv"

	"github.com/slack-go/slack"
	Logger "github.com/storyloop/dailystories/utils/log"
)

const defaultReportAlertThreshold = 3

// ModerationNotifier pushes a best-effort Slack message when a story
// accumulates report interactions. Delivery failure is logged and
// swallowed; moderation alerting must never affect the write path.
type ModerationNotifier struct {
	webhookURL string
	threshold  int64
}

// NewModerationNotifierFromEnv returns nil when no webhook is configured,
// which disables alerting entirely.
func NewModerationNotifierFromEnv() *ModerationNotifier {
	url := os.Getenv("SLACK_MODERATION_WEBHOOK")
	if url == "" {
		return nil
	}
	threshold := int64(defaultReportAlertThreshold)
	if raw := os.Getenv("REPORT_ALERT_THRESHOLD"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			threshold = parsed
		}
	}
	return &ModerationNotifier{webhookURL: url, threshold: threshold}
}

// StoryReported alerts once the story's report count reaches the
// threshold. Called in its own goroutine by the ingestion path.
func (n *ModerationNotifier) StoryReported(storyId string, title string, reportCount int64) {
	if reportCount < n.threshold {
		return
	}
	msg := slack.WebhookMessage{
		Text: fmt.Sprintf("Story %q (%s) has been reported %d times, please review", title, storyId, reportCount),
	}
	if err := slack.PostWebhook(n.webhookURL, &msg); err != nil {
		Logger.Log.Warn("failed to deliver moderation alert for story ", storyId, ": ", err)
	}
}
