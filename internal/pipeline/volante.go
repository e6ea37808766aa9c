package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/storage"
	"hipica/internal/util"
)

const fileKindVolante = "pdf_volante"

var (
	ErrNoVolanteDate = errors.New("volante date not found")

	reVolanteDate   = regexp.MustCompile(`(?i)(lunes|martes|mi[eé]rcoles|jueves|viernes|s[aá]bado|domingo)\s+\d{1,2}\s+(?:de\s+)?[a-záéíóú]+\s+(?:de\s+)?\d{4}`)
	reMeetingHCH    = regexp.MustCompile(`(?i)REUNI[OÓ]N\s*N\s*[º°o]\s*(\d+)`)
	reMeetingCHS    = regexp.MustCompile(`(?i)\bRN\s*(\d+)`)
	reRaceHeader    = regexp.MustCompile(`(?i)(\d{1,2}:\d{2})\s*(?:hrs?\.?\s*)?aprox`)
	reRaceDetails   = regexp.MustCompile(`^(\d{1,2})\s+(\d{3,4})(.*)$`)
	reOptionsOPC    = regexp.MustCompile(`(?i)OPC\s*:\s*([\d\-\s]+)`)
	reOptionsLabel  = regexp.MustCompile(`(?i)O[pc]ci[óo]n(?:es)?`)
	reDigits        = regexp.MustCompile(`\d+`)
	reParticipant   = regexp.MustCompile(`^(\d{1,2})\s+(.+?)\s+-\s+(.*)$`)
	reWeightToken   = regexp.MustCompile(`\b(\d{2,3})\b`)
	reBareNumber    = regexp.MustCompile(`^\d{1,2}$`)
	reWeightLine    = regexp.MustCompile(`^\d{2,3}$`)
	reLeadingDigits = regexp.MustCompile(`^\d`)

	reRaceTitle      = regexp.MustCompile(`(?i)\d{1,2}:\d{2}\s*aprox\.?\s*([\d.\s]+?)\s*Mts\.?\s*\(([\d.,]+)\)\s*(.*)$`)
	reRaceKind       = regexp.MustCompile(`(?i)^(?:HANDICAP|CLASICO CONDICIONAL|CLASICO|CONDICIONAL)\b`)
	reSeriesOrdinal  = regexp.MustCompile(`(?i)\b(\d+)(?:ta|da|ra|to|do|ro|ma|a)\.?\s*Serie`)
	reSeriesPlain    = regexp.MustCompile(`(?i)\bSerie\s+(?:Indice|[A-Z0-9]+).*$`)
	reSeriesCode     = regexp.MustCompile(`(?i)\bSERIE[- ]?[A-Z0-9]+\b`)
	reRaceIndex      = regexp.MustCompile(`(?i)Indice:\s*(.+?)\s*$`)
	reWeightClause   = regexp.MustCompile(`(?i)\bPeso:`)
	reWeightCategory = regexp.MustCompile(`(?i)Peso:\s*(\d{2,3})\s*Kilos`)
	reBets           = regexp.MustCompile(`(?i)APUESTAS\s+DISP(?:ONIBLES)?\s*[:\-]\s*(.+)`)
	rePrizeWord      = regexp.MustCompile(`(?i)\bPREMIO`)
	rePrizeName      = regexp.MustCompile(`(?i)PREMIO\s*[:\-]\s*(.+)`)
	rePrizesWord     = regexp.MustCompile(`(?i)\bPREMIOS\b`)
	rePrizes         = regexp.MustCompile(`(?is)PREMIOS\s*[:\-].*?\$([\d.,]+).*?\$([\d.,]+).*?\$([\d.,]+).*?\$([\d.,]+)`)
	reShortPrize     = regexp.MustCompile(`(?i)Pr\.\s+(.+?)\s*\(`)
	reParenCode      = regexp.MustCompile(`\(([\d.,]+)\)`)
	reStudForm       = regexp.MustCompile(`^[\d\-\s*]+-(.+)$`)
	reNumericLine    = regexp.MustCompile(`^[\d\s\-.]+$`)
	reNonDigits      = regexp.MustCompile(`\D`)
)

// betNames maps the abbreviations printed on volantes to bet names.
var betNames = map[string]string{
	"GDOR": "Ganador", "GANADOR": "Ganador",
	"A 2°": "A Segundo", "A SEGUNDO": "A Segundo",
	"A 3°": "A Tercero", "A TERCERO": "A Tercero",
	"QLA": "Quinela", "QUINELA": "Quinela",
	"QLA-PLA": "Quinela-Place", "QUINELA-PLACE": "Quinela-Place",
	"EXAC": "Exacta", "EXACTA": "Exacta",
	"TRIF": "Trifecta", "TRIFECTA": "Trifecta",
	"SUP": "Superfecta", "SUPERFECTA": "Superfecta",
}

// ParseVolanteText reads a volante's header and race blocks. Races are split
// on "hh:mm aprox" headers and numbered in post time order unless the block
// carries its own number.
func ParseVolanteText(venue, text string) (internal.Volante, error) {
	lines := splitLines(text)
	v := internal.Volante{Venue: venue, Races: []internal.VolanteRace{}}

	joined := strings.Join(lines, "\n")
	m := reVolanteDate.FindString(joined)
	if m == "" {
		return v, ErrNoVolanteDate
	}
	date, ok := util.ParseSpanishDate(m)
	if !ok {
		return v, fmt.Errorf("%w: %q", ErrNoVolanteDate, m)
	}
	v.Date = date.Format(util.DateLayout)

	if mm := reMeetingHCH.FindStringSubmatch(joined); mm != nil {
		v.Meeting, _ = strconv.Atoi(mm[1])
	} else if mm := reMeetingCHS.FindStringSubmatch(joined); mm != nil {
		v.Meeting, _ = strconv.Atoi(mm[1])
	}

	var starts []int
	for i, ln := range lines {
		if reRaceHeader.MatchString(ln) {
			starts = append(starts, i)
		}
	}
	numbered := false
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		race := parseRaceBlock(lines[start:end])
		if race.Number > 0 {
			numbered = true
		}
		v.Races = append(v.Races, race)
	}

	if !numbered {
		sort.SliceStable(v.Races, func(i, j int) bool {
			return postMinutes(v.Races[i].PostTime) < postMinutes(v.Races[j].PostTime)
		})
	}
	for i := range v.Races {
		if v.Races[i].Number == 0 {
			v.Races[i].Number = i + 1
		}
	}
	return v, nil
}

func parseRaceBlock(block []string) internal.VolanteRace {
	header := block[0]
	race := internal.VolanteRace{PostTime: reRaceHeader.FindStringSubmatch(header)[1]}
	parseRaceHeader(&race, header)

	if len(block) > 1 {
		if m := reRaceDetails.FindStringSubmatch(block[1]); m != nil && !reParticipant.MatchString(block[1]) {
			race.Number, _ = strconv.Atoi(m[1])
			if race.Distance == 0 {
				race.Distance, _ = strconv.Atoi(m[2])
				race.Condition = util.NormalizeSpaces(m[3])
			}
		}
	}

	first := len(block)
	for i := 1; i < len(block); i++ {
		if isParticipantStart(block, i) {
			first = i
			break
		}
	}
	race.Options = parseOptions(block[:first])
	parseRaceMeta(&race, strings.Join(block[:first], "\n"))

	var chunk []string
	flush := func() {
		if p, ok := parseParticipant(chunk); ok {
			race.Participants = append(race.Participants, p)
		}
		chunk = nil
	}
	for i := first; i < len(block); i++ {
		if isParticipantStart(block, i) {
			flush()
		}
		chunk = append(chunk, block[i])
	}
	flush()
	race.Competitors = len(race.Participants)
	return race
}

// parseRaceHeader reads distance, code and title from an HCH header
// ("15:30 aprox. 1.000 Mts. (5) HANDICAP 2da. Serie Indice: 1-12"), or code,
// kind and prize name from a CHS one ("12:30 APROX. Pr. EL DORADO (123)").
func parseRaceHeader(race *internal.VolanteRace, header string) {
	if m := reRaceTitle.FindStringSubmatch(header); m != nil {
		race.Distance = digitsInt(m[1])
		race.Code = strings.ReplaceAll(m[2], ".", "")
		parseRaceTitle(race, m[3])
		return
	}

	if codes := reParenCode.FindAllStringSubmatch(header, -1); len(codes) > 0 {
		race.Code = strings.ReplaceAll(codes[len(codes)-1][1], ".", "")
	}
	upper := strings.ToUpper(header)
	switch {
	case strings.Contains(upper, "HANDICAP"):
		race.Kind = "HANDICAP"
	case strings.Contains(upper, "CONDICIONAL"):
		race.Kind = "CONDICIONAL"
	case strings.Contains(upper, "CLASICO"):
		race.Kind = "CLASICO"
	}
	if m := reShortPrize.FindStringSubmatch(header); m != nil {
		race.PrizeName = strings.TrimSpace(m[1])
	}
}

func parseRaceTitle(race *internal.VolanteRace, rest string) {
	if loc := reWeightClause.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	rest = strings.TrimSpace(rest)

	if kind := reRaceKind.FindString(rest); kind != "" {
		race.Kind = strings.ToUpper(kind)
		rest = strings.TrimSpace(rest[len(kind):])
	}

	if m := reSeriesOrdinal.FindStringSubmatchIndex(rest); m != nil {
		if race.Kind == "HANDICAP" {
			race.Series = rest[m[2]:m[3]]
		}
		rest = rest[:m[0]] + " " + rest[m[1]:]
	} else if loc := reSeriesPlain.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	} else if loc := reSeriesCode.FindStringIndex(rest); loc != nil {
		rest = strings.Trim(rest[:loc[0]]+rest[loc[1]:], " .")
	}
	rest = util.NormalizeSpaces(rest)

	if race.Kind == "HANDICAP" {
		if m := reRaceIndex.FindStringSubmatchIndex(rest); m != nil {
			race.Index = rest[m[2]:m[3]]
			rest = rest[:m[0]]
		}
	}
	race.Condition = util.NormalizeSpaces(rest)
}

// parseRaceMeta reads weight category, bets and prizes from the lines
// between a race header and its first participant.
func parseRaceMeta(race *internal.VolanteRace, meta string) {
	if m := reWeightCategory.FindStringSubmatch(meta); m != nil {
		race.WeightCategory, _ = strconv.Atoi(m[1])
	}
	race.Bets = parseBets(meta)
	if m := rePrizeName.FindStringSubmatch(meta); m != nil {
		name := m[1]
		if loc := rePrizesWord.FindStringIndex(name); loc != nil {
			name = name[:loc[0]]
		}
		if name = strings.Trim(name, " -:"); name != "" {
			race.PrizeName = name
		}
	}
	if m := rePrizes.FindStringSubmatch(meta); m != nil {
		for i := range race.Prizes {
			race.Prizes[i] = digitsInt(m[i+1])
		}
	}
}

func parseBets(meta string) []string {
	m := reBets.FindStringSubmatch(meta)
	if m == nil {
		return nil
	}
	text := m[1]
	if loc := rePrizeWord.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	var out []string
	for _, piece := range strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == ',' }) {
		token := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(piece), "º", "°"))
		if token == "" {
			continue
		}
		if name, ok := betNames[token]; ok {
			token = name
		}
		out = append(out, token)
	}
	return out
}

func digitsInt(s string) int {
	n, _ := strconv.Atoi(reNonDigits.ReplaceAllString(s, ""))
	return n
}

// parseOptions returns the four option numbers, or zeros when the block
// does not list exactly four.
func parseOptions(meta []string) [4]int {
	var out [4]int
	var raw []string
	for _, ln := range meta {
		if m := reOptionsOPC.FindStringSubmatch(ln); m != nil {
			raw = reDigits.FindAllString(m[1], -1)
			break
		}
		if loc := reOptionsLabel.FindStringIndex(ln); loc != nil {
			raw = reDigits.FindAllString(ln[loc[1]:], -1)
			break
		}
	}
	if len(raw) < 4 {
		return out
	}
	for i := 0; i < 4; i++ {
		out[i], _ = strconv.Atoi(raw[i])
	}
	return out
}

func isParticipantStart(lines []string, idx int) bool {
	line := lines[idx]
	if reBareNumber.MatchString(line) {
		n, _ := strconv.Atoi(line)
		return n <= 30 && idx+1 < len(lines) && strings.Contains(lines[idx+1], " - ")
	}
	return reParticipant.MatchString(line)
}

func parseParticipant(chunk []string) (internal.VolanteParticipant, bool) {
	if len(chunk) == 0 {
		return internal.VolanteParticipant{}, false
	}
	head := chunk[0]
	rest := chunk[1:]
	if reBareNumber.MatchString(head) && len(chunk) > 1 {
		head = head + " " + chunk[1]
		rest = chunk[2:]
	}
	m := reParticipant.FindStringSubmatch(head)
	if m == nil {
		return internal.VolanteParticipant{}, false
	}
	p := internal.VolanteParticipant{Name: strings.TrimSpace(m[2])}
	p.Number, _ = strconv.Atoi(m[1])
	if w := reWeightToken.FindStringSubmatch(m[3]); w != nil {
		n, _ := strconv.Atoi(w[1])
		p.Weight = &n
	}
	for i, ln := range rest {
		if p.Weight == nil && reWeightLine.MatchString(ln) {
			n, _ := strconv.Atoi(ln)
			p.Weight = &n
			continue
		}
		if strings.Contains(ln, " - ") && !reLeadingDigits.MatchString(ln) {
			jockey, trainer, _ := strings.Cut(ln, " - ")
			p.Jockey = strings.TrimSpace(jockey)
			p.Trainer = strings.TrimRight(strings.TrimSpace(trainer), ".")
			if i+1 < len(rest) {
				p.Stud = studOf(rest[i+1])
			}
			break
		}
	}
	return p, true
}

// studOf reads the stud from the line after jockey and trainer, either bare
// or behind a form string ("1-3-2-Stud Los Andes").
func studOf(line string) string {
	line = strings.TrimSpace(line)
	if m := reStudForm.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	if line == "" || strings.Contains(line, ":") || reNumericLine.MatchString(line) {
		return ""
	}
	return line
}

func postMinutes(hhmm string) int {
	h, m, _ := strings.Cut(hhmm, ":")
	hi, _ := strconv.Atoi(h)
	mi, _ := strconv.Atoi(m)
	return hi*60 + mi
}

// VolanteOutcome reports what happened to one volante file.
type VolanteOutcome struct {
	File    string
	Status  string
	Output  string
	Volante *internal.Volante
}

const (
	VolanteProcessed   = "processed"
	VolanteSkippedDone = "skipped_processed"
	VolanteSkippedDate = "skipped_date"
)

type VolanteService struct {
	db      *storage.DB
	cfg     config.Config
	extract func([]byte) (string, error)
}

func NewVolanteService(db *storage.DB, cfg config.Config) *VolanteService {
	return &VolanteService{db: db, cfg: cfg, extract: ExtractPDFText}
}

// ProcessFile parses one volante PDF. An empty venue is detected from the
// file name; a non-empty targetDate skips volantes for other days.
func (s *VolanteService) ProcessFile(path, venue, targetDate string) (VolanteOutcome, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return VolanteOutcome{}, err
	}
	return s.ProcessContent(filepath.Base(path), content, venue, targetDate)
}

func (s *VolanteService) ProcessContent(name string, content []byte, venue, targetDate string) (VolanteOutcome, error) {
	out := VolanteOutcome{File: name}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	done, err := s.db.IsFileProcessed(name, hash)
	if err != nil {
		return out, err
	}
	if done {
		out.Status = VolanteSkippedDone
		return out, nil
	}

	if venue == "" {
		detected, ok := internal.DetectVenue(name)
		if !ok {
			return out, fmt.Errorf("%w: cannot detect venue of %s", ErrUnknownVenue, name)
		}
		venue = detected.Code
	}

	stem := util.SafeFileName(strings.TrimSuffix(name, filepath.Ext(name)))

	text, err := s.extract(content)
	if err != nil {
		return out, fmt.Errorf("read pdf %s: %w", name, err)
	}
	v, err := ParseVolanteText(venue, text)
	if err != nil {
		return out, fmt.Errorf("parse volante %s: %w", name, err)
	}
	v.SourceFile = name
	out.Volante = &v

	if targetDate != "" && v.Date != targetDate {
		log.Info().Str("file", name).Str("date", v.Date).Str("target", targetDate).Msg("volante for another day, skipping")
		out.Status = VolanteSkippedDate
		return out, nil
	}

	if err := s.db.UpsertVolante(v); err != nil {
		return out, fmt.Errorf("store volante %s: %w", name, err)
	}
	// the JSON artifact follows the stored volante
	out.Output = filepath.Join(s.cfg.VolanteJSONDir(venue), fmt.Sprintf("volante_%s_%s.json", stem, v.Date))
	if err := writeJSON(out.Output, v); err != nil {
		return out, err
	}
	if err := s.db.MarkFileProcessed(name, hash, fileKindVolante); err != nil {
		return out, err
	}

	out.Status = VolanteProcessed
	log.Info().Str("venue", venue).Str("date", v.Date).Str("file", name).Int("races", len(v.Races)).Msg("volante processed")
	return out, nil
}

// ProcessDirectory handles every PDF in dir. A failing file is logged and
// the rest continue.
func (s *VolanteService) ProcessDirectory(dir, venue, targetDate string) ([]VolanteOutcome, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []VolanteOutcome
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		res, err := s.ProcessFile(filepath.Join(dir, e.Name()), venue, targetDate)
		if err != nil {
			log.Error().Err(err).Str("file", e.Name()).Msg("volante failed")
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// ProcessPending parses volante files stored by the mail intake.
func (s *VolanteService) ProcessPending(limit int, targetDate string) ([]VolanteOutcome, error) {
	files, err := s.db.ListVolanteFilesByStatus("stored", limit)
	if err != nil {
		return nil, err
	}
	var out []VolanteOutcome
	for _, f := range files {
		res, procErr := s.ProcessFile(f.Path, f.Venue, targetDate)
		status := "processed"
		switch {
		case procErr != nil:
			log.Error().Err(procErr).Str("file", f.Path).Msg("volante failed")
			status = "failed"
		case res.Status == VolanteSkippedDate:
			// left for the day it belongs to
			continue
		case res.Status != VolanteProcessed:
			status = "skipped"
		}
		if err := s.db.UpdateVolanteFileStatus(f.ID, status); err != nil {
			return out, err
		}
		if procErr == nil {
			out = append(out, res)
		}
	}
	return out, nil
}
