package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/storage"
)

const (
	ArtifactProgram = "json_programa"
	ArtifactResults = "json_resultados"
	ArtifactVolante = "json_volante"
)

var (
	reProgramArtifact = regexp.MustCompile(`^programas_\d+_(\d{4}-\d{2}-\d{2})\.json$`)
	reResultsArtifact = regexp.MustCompile(`^resultados_detalle_([A-Za-z]+)_(\d{4}-\d{2}-\d{2})\.json$`)
	reVolanteArtifact = regexp.MustCompile(`^volante_.+_(\d{4}-\d{2}-\d{2})\.json$`)
)

// ArtifactKind classifies a JSON artifact by file name.
func ArtifactKind(name string) (string, bool) {
	switch {
	case reProgramArtifact.MatchString(name):
		return ArtifactProgram, true
	case reResultsArtifact.MatchString(name):
		return ArtifactResults, true
	case reVolanteArtifact.MatchString(name):
		return ArtifactVolante, true
	}
	return "", false
}

type LoadSummary struct {
	Loaded  int
	Skipped int
	Failed  int
}

// Loader stores JSON artifacts written by earlier runs.
type Loader struct {
	db *storage.DB
}

func NewLoader(db *storage.DB) *Loader {
	return &Loader{db: db}
}

// LoadDirectory walks root and loads every recognised artifact once per
// (file name, content hash).
func (l *Loader) LoadDirectory(root string) (LoadSummary, error) {
	var summary LoadSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		kind, ok := ArtifactKind(d.Name())
		if !ok {
			return nil
		}
		loaded, err := l.LoadFile(path, kind)
		switch {
		case err != nil:
			summary.Failed++
			log.Error().Err(err).Str("file", path).Msg("artifact not loaded")
		case loaded:
			summary.Loaded++
		default:
			summary.Skipped++
		}
		return nil
	})
	return summary, err
}

// LoadFile stores one artifact. It reports false when the same content was
// loaded before.
func (l *Loader) LoadFile(path, kind string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	name := filepath.Base(path)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	done, err := l.db.IsFileProcessed(name, hash)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	switch kind {
	case ArtifactProgram:
		var m internal.Meeting
		if err := json.Unmarshal(data, &m); err != nil {
			return false, fmt.Errorf("decode %s: %w", name, err)
		}
		if err := l.db.UpsertMeeting(m); err != nil {
			return false, err
		}
	case ArtifactResults:
		var rf internal.ResultsFile
		if err := json.Unmarshal(data, &rf); err != nil {
			return false, fmt.Errorf("decode %s: %w", name, err)
		}
		for _, race := range rf.Races {
			if err := l.db.ReplaceRaceResults(rf.Venue, rf.Date, race); err != nil {
				return false, err
			}
		}
	case ArtifactVolante:
		var v internal.Volante
		if err := json.Unmarshal(data, &v); err != nil {
			return false, fmt.Errorf("decode %s: %w", name, err)
		}
		if err := l.db.UpsertVolante(v); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown artifact kind %q", kind)
	}

	if err := l.db.MarkFileProcessed(name, hash, kind); err != nil {
		return false, err
	}
	log.Debug().Str("file", name).Str("kind", kind).Msg("artifact loaded")
	return true, nil
}
