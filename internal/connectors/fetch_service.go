package connectors

import (
	"context"

	"github.com/rs/zerolog/log"

	"hipica/internal/config"
	"hipica/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *VolanteStore
}

type FetchResult struct {
	Fetched int
	Stored  int
	Ignored int
}

func NewFetchService(db *storage.DB, cfg config.Config, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewVolanteStore(db, cfg),
	}
}

// FetchAndStore pulls messages and keeps the volante PDFs they carry. A
// message that cannot be parsed is logged and skipped.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		files, err := s.store.Store(msg)
		if err != nil {
			log.Error().Err(err).Str("provider", msg.Provider).Str("message_id", msg.MessageID).Msg("volante mail not stored")
			result.Ignored++
			continue
		}
		if len(files) == 0 {
			result.Ignored++
		}
		result.Stored += len(files)
	}

	log.Info().Int("fetched", result.Fetched).Int("stored", result.Stored).Int("ignored", result.Ignored).Msg("volante mail fetch done")
	return result, nil
}
