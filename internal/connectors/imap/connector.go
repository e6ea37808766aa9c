package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
)

// lookback bounds the SINCE search; volantes older than a week are stale.
const lookback = 7 * 24 * time.Hour

type Connector struct {
	addr     string
	host     string
	secure   bool
	user     string
	password string
	markSeen bool
	now      func() time.Time
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	return &Connector{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		host:     cfg.IMAPHost,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
		now:      time.Now,
	}, nil
}

// FetchInbox downloads unseen messages of the last week that carry a PDF
// part. Body structures are checked first so plain mail is never downloaded.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if label == "" {
		label = "INBOX"
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", label, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = c.now().Add(-lookback)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search mailbox %s: %w", label, err)
	}
	if len(uids) == 0 || ctx.Err() != nil {
		return nil, ctx.Err()
	}

	candidates, err := pdfMessages(client, uids)
	if err != nil {
		return nil, err
	}
	if max > 0 && len(candidates) > max {
		candidates = candidates[len(candidates)-max:]
	}
	log.Debug().Str("mailbox", label).Int("unseen", len(uids)).Int("with_pdf", len(candidates)).Msg("imap search done")
	if len(candidates) == 0 || ctx.Err() != nil {
		return nil, ctx.Err()
	}

	out, err := c.download(client, candidates)
	if err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func (c *Connector) dial() (*imapclient.Client, error) {
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(c.addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", c.addr, err)
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("imap login %s: %w", c.user, err)
	}
	return client, nil
}

func pdfMessages(client *imapclient.Client, uids []uint32) ([]uint32, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(set, []imap.FetchItem{imap.FetchUid, imap.FetchBodyStructure}, ch) }()

	var out []uint32
	for msg := range ch {
		if msg != nil && hasPDF(msg.BodyStructure) {
			out = append(out, msg.Uid)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch body structures: %w", err)
	}
	return out, nil
}

func hasPDF(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if strings.EqualFold(bs.MIMEType, "application") && strings.EqualFold(bs.MIMESubType, "pdf") {
		return true
	}
	for _, name := range []string{bs.Params["name"], bs.DispositionParams["filename"]} {
		if strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return true
		}
	}
	for _, part := range bs.Parts {
		if hasPDF(part) {
			return true
		}
	}
	return false
}

func (c *Connector) download(client *imapclient.Client, uids []uint32) ([]internal.FetchedMailMessage, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(set, items, ch) }()

	out := make([]internal.FetchedMailMessage, 0, len(uids))
	fetched := new(imap.SeqSet)
	var readErr error
	for msg := range ch {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = fmt.Errorf("read message uid %d: %w", msg.Uid, err)
			continue
		}
		out = append(out, toFetched(msg, raw))
		fetched.AddNum(msg.Uid)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	if c.markSeen && !fetched.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := client.UidStore(fetched, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return nil, fmt.Errorf("mark volante mails seen: %w", err)
		}
	}
	return out, nil
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	m := internal.FetchedMailMessage{
		Provider:  "imap",
		MessageID: fmt.Sprintf("imap-%d", msg.Uid),
		Raw:       raw,
	}
	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			m.MessageID = env.MessageId
		}
		m.Subject = env.Subject
		if len(env.From) > 0 && env.From[0] != nil {
			m.From = env.From[0].Address()
		}
	}
	received := msg.InternalDate
	if received.IsZero() {
		received = time.Now()
	}
	m.ReceivedAt = received.UTC().Format(time.RFC3339)
	return m
}
