package connectors

import (
	"context"
	"fmt"
	"strings"

	"hipica/internal"
	"hipica/internal/config"
	gmailconnector "hipica/internal/connectors/gmail"
	imapconnector "hipica/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// NewConnector builds the mailbox connector for provider ("gmail" or "imap").
func NewConnector(cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
