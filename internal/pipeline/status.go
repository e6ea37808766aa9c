package pipeline

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/storage"
)

// StatusService answers which stages (program, results, volante) are done
// for each venue and event date.
type StatusService struct {
	db  *storage.DB
	cfg config.Config
}

func NewStatusService(db *storage.DB, cfg config.Config) *StatusService {
	return &StatusService{db: db, cfg: cfg}
}

func (s *StatusService) Get(venue, date string) (internal.EventStatus, error) {
	return s.db.GetStatus(venue, date)
}

func (s *StatusService) List(venue string, limit int) ([]internal.EventStatus, error) {
	return s.db.ListStatuses(venue, limit)
}

// Rebuild derives status rows from the artifacts on disk and merges them into
// the status table. Flags already set are never cleared.
func (s *StatusService) Rebuild() ([]internal.EventStatus, error) {
	found := map[[2]string]*internal.EventStatus{}
	mark := func(venue, date string, stage internal.Stage) {
		venue = strings.ToUpper(venue)
		key := [2]string{venue, date}
		st, ok := found[key]
		if !ok {
			st = &internal.EventStatus{Venue: venue, Date: date}
			found[key] = st
		}
		st.Set(stage)
	}

	roots := []string{s.cfg.ProgramsDir(), s.cfg.ResultsDir(), filepath.Join(s.cfg.PDFScrapingPath, "json")}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			switch kind, _ := ArtifactKind(name); kind {
			case ArtifactProgram:
				var m struct {
					VenueCode string `json:"venue_code"`
					Date      string `json:"date"`
				}
				data, err := os.ReadFile(path)
				if err == nil {
					err = json.Unmarshal(data, &m)
				}
				if err != nil || m.VenueCode == "" {
					log.Warn().Err(err).Str("file", path).Msg("program artifact without venue, ignored")
					return nil
				}
				date := m.Date
				if date == "" {
					date = reProgramArtifact.FindStringSubmatch(name)[1]
				}
				mark(m.VenueCode, date, internal.StageProgram)
			case ArtifactResults:
				mm := reResultsArtifact.FindStringSubmatch(name)
				mark(mm[1], mm[2], internal.StageResults)
			case ArtifactVolante:
				venue := filepath.Base(filepath.Dir(path))
				mark(venue, reVolanteArtifact.FindStringSubmatch(name)[1], internal.StageVolante)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]internal.EventStatus, 0, len(found))
	for _, st := range found {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Date < out[j].Date
	})
	if err := s.db.MergeStatuses(out); err != nil {
		return nil, err
	}
	log.Info().Int("events", len(out)).Msg("status table rebuilt from artifacts")
	return out, nil
}
