package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bluegreen-cd/internal/model"

	"go.uber.org/zap"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotifyAttemptStart     NotificationType = "attempt_start"     // 发布开始
	NotifyAttemptSucceeded NotificationType = "attempt_succeeded" // 发布成功
	NotifyAttemptFailed    NotificationType = "attempt_failed"    // 发布失败
	NotifyRolledBack       NotificationType = "rolled_back"       // 已回滚
	NotifyApprovalPending  NotificationType = "approval_pending"  // 等待审批
	NotifyPhaseTransition  NotificationType = "phase_transition"  // 阶段转换
)

// NotificationMessage 通知消息
type NotificationMessage struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"` // 额外信息
}

// Notifier 通知器接口
type Notifier interface {
	// Send 发送通知
	Send(ctx context.Context, msg *NotificationMessage) error

	// SendAttemptNotification 发送发布过程通知
	SendAttemptNotification(ctx context.Context, attempt *model.DeploymentAttempt, notifyType NotificationType, message string) error
}

// ============= Lark 通知适配器 =============

// LarkNotifier Lark通知器
type LarkNotifier struct {
	webhookURL string
	enabled    bool
	logger     *zap.Logger
	client     *http.Client
}

// NewLarkNotifier 创建Lark通知器
func NewLarkNotifier(webhookURL string, enabled bool, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		webhookURL: webhookURL,
		enabled:    enabled,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send 发送通知
func (n *LarkNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	if !n.enabled {
		n.logger.Debug("通知已禁用,跳过发送")
		return nil
	}

	if n.webhookURL == "" {
		n.logger.Warn("Lark Webhook URL未配置")
		return nil
	}

	larkMsg := n.buildLarkMessage(msg)

	jsonData, err := json.Marshal(larkMsg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Lark API返回错误状态码: %d", resp.StatusCode)
	}

	n.logger.Info("Lark通知发送成功",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title))

	return nil
}

// SendAttemptNotification 发送发布过程通知
func (n *LarkNotifier) SendAttemptNotification(ctx context.Context, attempt *model.DeploymentAttempt, notifyType NotificationType, message string) error {
	var title, color string

	switch notifyType {
	case NotifyAttemptStart:
		title = "🚀 蓝绿发布开始"
		color = "blue"
	case NotifyAttemptSucceeded:
		title = "✅ 蓝绿发布成功"
		color = "green"
	case NotifyAttemptFailed:
		title = "❌ 蓝绿发布失败"
		color = "red"
	case NotifyRolledBack:
		title = "↩️ 发布已回滚"
		color = "orange"
	case NotifyApprovalPending:
		title = "⏸ 发布等待审批"
		color = "yellow"
	default:
		title = "📢 发布通知"
		color = "grey"
	}

	content := fmt.Sprintf("**发布编号**: %s\n**制品版本**: %s\n**切流方向**: %s → %s\n**消息**: %s",
		attempt.AttemptID, attempt.ArtifactVersion, attempt.FromSlot, attempt.ToSlot, message)

	msg := &NotificationMessage{
		Type:      notifyType,
		Title:     title,
		Content:   content,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"attempt_id": attempt.AttemptID,
			"target_id":  attempt.TargetID,
			"color":      color,
		},
	}

	return n.Send(ctx, msg)
}

// buildLarkMessage 构建Lark消息格式
func (n *LarkNotifier) buildLarkMessage(msg *NotificationMessage) map[string]interface{} {
	color := "grey"
	if c, ok := msg.Extra["color"].(string); ok {
		color = c
	}

	// Lark富文本消息格式
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": msg.Title,
				},
				"template": color,
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "lark_md",
						"content": msg.Content,
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "plain_text",
						"content": fmt.Sprintf("时间: %s", msg.Timestamp.Format("2006-01-02 15:04:05")),
					},
				},
			},
		},
	}
}

// ============= 日志通知器(仅记录日志,不发送实际通知) =============

// LogNotifier 日志通知器
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// Send 记录通知到日志
func (n *LogNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	n.logger.Info("📢 通知",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("content", msg.Content),
		zap.Any("extra", msg.Extra))
	return nil
}

// SendAttemptNotification 记录发布通知到日志
func (n *LogNotifier) SendAttemptNotification(ctx context.Context, attempt *model.DeploymentAttempt, notifyType NotificationType, message string) error {
	n.logger.Info("📢 发布通知",
		zap.String("type", string(notifyType)),
		zap.String("attempt_id", attempt.AttemptID),
		zap.Int64("target_id", attempt.TargetID),
		zap.String("message", message))
	return nil
}
