package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"hipica/internal"
	"hipica/internal/config"
)

const lookbackDays = 7

var errEnough = errors.New("enough messages listed")

type Connector struct {
	service *gmail.Service
	query   string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ctx := context.Background()
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	return &Connector{
		service: svc,
		query:   fmt.Sprintf("has:attachment filename:pdf newer_than:%dd", lookbackDays),
	}, nil
}

// FetchInbox pages through label until max messages with a PDF attachment
// are listed, then downloads each one in raw form.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	ids, err := c.list(ctx, label, max)
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get gmail message %s: %w", id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeRaw(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(id, msg.InternalDate, raw))
	}
	return out, nil
}

func (c *Connector) list(ctx context.Context, label string, max int) ([]string, error) {
	call := c.service.Users.Messages.List("me").Q(c.query)
	if label != "" {
		call = call.LabelIds(label)
	}
	if max > 0 {
		call = call.MaxResults(int64(max))
	}

	var ids []string
	err := call.Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, ref := range page.Messages {
			if ref.Id == "" {
				continue
			}
			ids = append(ids, ref.Id)
			if max > 0 && len(ids) >= max {
				return errEnough
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		return nil, fmt.Errorf("list gmail %s: %w", label, err)
	}
	log.Debug().Str("label", label).Int("listed", len(ids)).Msg("gmail list done")
	return ids, nil
}

// toFetched reads the envelope headers from the raw message. Attachments are
// parsed later by the volante store.
func toFetched(id string, internalDate int64, raw []byte) internal.FetchedMailMessage {
	m := internal.FetchedMailMessage{
		Provider:   "gmail",
		MessageID:  id,
		ReceivedAt: time.UnixMilli(internalDate).UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return m
	}
	h := parsed.Header
	if v := h.Get("Message-Id"); v != "" {
		m.MessageID = v
	}
	dec := new(mime.WordDecoder)
	m.Subject = h.Get("Subject")
	if s, err := dec.DecodeHeader(m.Subject); err == nil {
		m.Subject = s
	}
	if from, err := mail.ParseAddress(h.Get("From")); err == nil {
		m.From = from.Address
	}
	if internalDate == 0 {
		if t, err := h.Date(); err == nil {
			m.ReceivedAt = t.UTC().Format(time.RFC3339)
		}
	}
	return m
}

func decodeRaw(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
