package notifier

import "smartbot/internal/logger"

// TextNotifier is the sink for trade and status messages.
type TextNotifier interface {
	SendText(text string) error
}

// LogNotifier writes messages to the process log; used when Telegram is off.
type LogNotifier struct{}

func (LogNotifier) SendText(text string) error {
	logger.InfoBlock(text)
	return nil
}

// Send renders msg and delivers it, logging rather than returning failures.
func Send(n TextNotifier, msg StructuredMessage) {
	if n == nil {
		return
	}
	if err := n.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("notify: %s 发送失败: %v", msg.Title, err)
	}
}
