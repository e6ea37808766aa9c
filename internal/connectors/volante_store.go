package connectors

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/pipeline"
	"hipica/internal/storage"
	"hipica/internal/util"
)

// VolanteStore saves the PDF attachments of volante mails under the venue's
// PDF folder and registers them by content hash.
type VolanteStore struct {
	db  *storage.DB
	cfg config.Config
}

func NewVolanteStore(db *storage.DB, cfg config.Config) *VolanteStore {
	return &VolanteStore{db: db, cfg: cfg}
}

// Store returns the newly registered files. Mails that do not look like a
// volante, and PDFs already registered, yield nothing.
func (s *VolanteStore) Store(msg internal.FetchedMailMessage) ([]internal.VolanteFile, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail %s: %w", msg.MessageID, err)
	}

	subject := msg.Subject
	if subject == "" {
		subject = env.GetHeader("Subject")
	}

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	var pdfs []*enmime.Part
	names := make([]string, 0, len(parts))
	for _, att := range parts {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		names = append(names, filename)
		if strings.HasSuffix(strings.ToLower(filename), ".pdf") || att.ContentType == "application/pdf" {
			pdfs = append(pdfs, att)
		}
	}

	detect := pipeline.DetectVolanteMail(subject, names)
	if !detect.IsVolante {
		log.Debug().Str("message_id", msg.MessageID).Str("subject", subject).Str("reason", detect.Reason).Msg("not a volante mail")
		return nil, nil
	}

	var out []internal.VolanteFile
	for _, att := range pdfs {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "volante.pdf"
		}
		venue := detect.Venue
		if v, ok := internal.DetectVenue(filename); ok {
			venue = v.Code
		}
		if venue == "" {
			log.Warn().Str("message_id", msg.MessageID).Str("file", filename).Msg("volante venue unknown, attachment ignored")
			continue
		}

		sum := sha256.Sum256(att.Content)
		hash := hex.EncodeToString(sum[:])
		path, err := s.write(venue, filename, hash, att.Content)
		if err != nil {
			return out, err
		}

		file, created, err := s.db.RegisterVolanteFile(internal.VolanteFile{
			Venue:      venue,
			Path:       path,
			Hash:       hash,
			Provider:   msg.Provider,
			MessageID:  msg.MessageID,
			Subject:    subject,
			ReceivedAt: msg.ReceivedAt,
		})
		if err != nil {
			return out, err
		}
		if !created {
			continue
		}
		log.Info().Str("venue", venue).Str("file", path).Str("message_id", msg.MessageID).Msg("volante stored")
		out = append(out, file)
	}
	return out, nil
}

func (s *VolanteStore) write(venue, filename, hash string, content []byte) (string, error) {
	dir := s.cfg.VolantePDFDir(venue)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	stem := util.SafeFileName(strings.TrimSuffix(filename, ext))
	path := filepath.Join(dir, stem+".pdf")
	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, content) {
			return path, nil
		}
		path = filepath.Join(dir, stem+"_"+hash[:8]+".pdf")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", err
		}
	}
	return path, nil
}
