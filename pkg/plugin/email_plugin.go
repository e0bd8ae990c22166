package plugin

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// EmailPlugin 邮件通知插件（对外导出）
type EmailPlugin struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool

	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailPlugin 创建邮件通知插件（对外导出）
func NewEmailPlugin() Plugin {
	return &EmailPlugin{}
}

// Name 插件名称
func (e *EmailPlugin) Name() string {
	return "email"
}

// Init 初始化插件，必填参数 smtp_host、from、to（逗号分隔）
func (e *EmailPlugin) Init(params map[string]string) error {
	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}

	e.smtpPort = 25
	if portStr := params["smtp_port"]; portStr != "" {
		if _, err := fmt.Sscanf(portStr, "%d", &e.smtpPort); err != nil {
			return fmt.Errorf("smtp_port参数格式错误: %w", err)
		}
	}

	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}

	e.to = e.to[:0]
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			e.to = append(e.to, addr)
		}
	}
	if len(e.to) == 0 {
		return fmt.Errorf("to参数不能为空")
	}

	if e.send == nil {
		e.send = e.sendMail
	}
	e.enabled = true
	log.WithFields(log.Fields{
		"smtp": fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort),
		"from": e.from,
		"to":   e.to,
	}).Info("[EmailPlugin] 初始化完成")
	return nil
}

// Execute 发送一封通知邮件
func (e *EmailPlugin) Execute(_ context.Context, n Notification) error {
	if !e.enabled {
		return fmt.Errorf("邮件插件未初始化")
	}

	msg := e.buildMessage(subject(n), buildBody(n))
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)
	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}
	if err := e.send(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	log.WithFields(log.Fields{"event": n.Event, "run_id": n.RunID}).Debug("[EmailPlugin] 邮件发送成功")
	return nil
}

// subject 通知标题
func subject(n Notification) string {
	switch n.Event {
	case executor.EventRunStarted:
		return fmt.Sprintf("[运行开始] %s - %s", n.PipelineID, n.RunID)
	case executor.EventRunFinished:
		if n.Status == storage.RunStatusSuccess {
			return fmt.Sprintf("[运行完成] %s - %s", n.PipelineID, n.RunID)
		}
		return fmt.Sprintf("[运行失败] %s - %s", n.PipelineID, n.RunID)
	case executor.EventTaskSucceeded:
		return fmt.Sprintf("[Task成功] %s.%s", n.PipelineID, n.TaskID)
	case executor.EventTaskFailed:
		return fmt.Sprintf("[Task失败] %s.%s (%s)", n.PipelineID, n.TaskID, n.Status)
	case executor.EventTaskRetrying:
		return fmt.Sprintf("[Task重试] %s.%s 第%d次", n.PipelineID, n.TaskID, n.Attempt)
	default:
		return fmt.Sprintf("[通知] %s %s", n.Event, n.PipelineID)
	}
}

// buildBody 构建邮件正文
func buildBody(n Notification) string {
	var body strings.Builder
	fmt.Fprintf(&body, "事件类型: %s\n", n.Event)
	fmt.Fprintf(&body, "Pipeline: %s\n", n.PipelineID)
	fmt.Fprintf(&body, "Run ID: %s\n", n.RunID)
	if n.TaskID != "" {
		fmt.Fprintf(&body, "Task ID: %s\n", n.TaskID)
	}
	if n.Status != "" {
		fmt.Fprintf(&body, "状态: %s\n", n.Status)
	}
	if n.Attempt > 0 {
		fmt.Fprintf(&body, "尝试次数: %d\n", n.Attempt)
	}
	if n.Error != "" {
		fmt.Fprintf(&body, "错误信息: %s\n", n.Error)
	}
	fmt.Fprintf(&body, "时间: %s\n", n.Timestamp.Format("2006-01-02 15:04:05"))
	return body.String()
}

// buildMessage 构建邮件消息
func (e *EmailPlugin) buildMessage(subject, body string) string {
	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", e.from)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}

// sendMail 465端口走隐式TLS，其余端口使用smtp.SendMail
func (e *EmailPlugin) sendMail(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if e.smtpPort != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}
	return client.Quit()
}
