package internal

import (
	"strings"

	"hipica/internal/normalize"
	"hipica/internal/util"
)

type Venue struct {
	Code string
	Name string
}

var Venues = []Venue{
	{Code: "HCH", Name: "Hipódromo Chile"},
	{Code: "CHS", Name: "Club Hípico de Santiago"},
	{Code: "VSC", Name: "Valparaíso Sporting"},
}

// LookupVenue matches a venue by code or by (accent-insensitive) name.
func LookupVenue(value string) (Venue, bool) {
	v := util.NormalizeName(value)
	if v == "" {
		return Venue{}, false
	}
	for _, venue := range Venues {
		if v == venue.Code || v == util.NormalizeName(venue.Name) {
			return venue, true
		}
	}
	for _, venue := range Venues {
		name := util.NormalizeName(venue.Name)
		if strings.Contains(v, name) || strings.Contains(name, v) {
			return venue, true
		}
	}
	return Venue{}, false
}

var venueHints = [][2]string{
	{"CLUB HIPICO", "CHS"},
	{"SPORTING", "VSC"},
	{"HIPODROMO", "HCH"},
}

// DetectVenue looks for a venue code or name anywhere in free text such as
// an attachment file name or a mail subject.
func DetectVenue(text string) (Venue, bool) {
	norm := util.NormalizeName(text)
	for _, venue := range Venues {
		if strings.Contains(norm, util.NormalizeName(venue.Name)) {
			return venue, true
		}
	}
	tokens := " " + norm + " "
	for _, venue := range Venues {
		if strings.Contains(tokens, " "+venue.Code+" ") {
			return venue, true
		}
	}
	for _, hint := range venueHints {
		if strings.Contains(norm, hint[0]) {
			return LookupVenue(hint[1])
		}
	}
	return Venue{}, false
}

// Stage is one of the per-event processing flags.
type Stage string

const (
	StageProgram Stage = "P"
	StageResults Stage = "R"
	StageVolante Stage = "V"
)

func (s Stage) Valid() bool {
	return s == StageProgram || s == StageResults || s == StageVolante
}

type Meeting struct {
	ID        int    `json:"id"`
	Date      string `json:"date"`
	VenueCode string `json:"venue_code"`
	VenueName string `json:"venue_name"`
	Number    int    `json:"number"`
	Director  string `json:"director,omitempty"`
	Races     []Race `json:"races"`
}

type Race struct {
	ID        int      `json:"id"`
	Number    int      `json:"number"`
	PostTime  string   `json:"post_time"`
	Name      string   `json:"name"`
	Prize     *float64 `json:"prize"`
	Classic   bool     `json:"classic"`
	Kind      string   `json:"kind,omitempty"`
	Surface   string   `json:"surface,omitempty"`
	Distance  int      `json:"distance"`
	Condition string   `json:"condition,omitempty"`
	Index     string   `json:"index,omitempty"`
	Runners   []Runner `json:"runners,omitempty"`
}

type Runner struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Number      int      `json:"number"`
	Gate        int      `json:"gate"`
	JockeyID    int      `json:"jockey_id,omitempty"`
	Jockey      string   `json:"jockey"`
	TrainerID   int      `json:"trainer_id,omitempty"`
	Trainer     string   `json:"trainer"`
	OwnerID     int      `json:"owner_id,omitempty"`
	Owner       string   `json:"owner"`
	HorseWeight *int     `json:"horse_weight"`
	Weight      *float64 `json:"weight"`
}

// ResultRow is one normalized results row together with its link to the
// program runner.
type ResultRow struct {
	Row         int              `json:"row"`
	Record      normalize.Record `json:"record"`
	Sire        string           `json:"sire,omitempty"`
	RunnerID    *int             `json:"runner_id"`
	MatchMethod string           `json:"match_method,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}

type RaceResult struct {
	RaceID     int         `json:"race_id"`
	RaceNumber int         `json:"race_number"`
	Prize      string      `json:"prize,omitempty"`
	Template   string      `json:"template,omitempty"`
	Rows       []ResultRow `json:"rows"`
	Skipped    int         `json:"skipped_rows"`
}

// ResultsFile is the per venue and date results artifact.
type ResultsFile struct {
	Venue     string       `json:"venue"`
	Date      string       `json:"date"`
	MeetingID int          `json:"meeting_id"`
	ScrapedAt string       `json:"scraped_at"`
	Races     []RaceResult `json:"races"`
}

type VolanteParticipant struct {
	Number  int    `json:"number"`
	Name    string `json:"name"`
	Jockey  string `json:"jockey,omitempty"`
	Trainer string `json:"trainer,omitempty"`
	Stud    string `json:"stud,omitempty"`
	Weight  *int   `json:"weight"`
}

// VolanteRace is one race block of a volante. Prizes holds the amounts for
// places 1 to 4, zero when the block lists none.
type VolanteRace struct {
	Number         int                  `json:"number"`
	PostTime       string               `json:"post_time"`
	Distance       int                  `json:"distance_m,omitempty"`
	Code           string               `json:"code,omitempty"`
	Kind           string               `json:"kind,omitempty"`
	Condition      string               `json:"condition,omitempty"`
	Series         string               `json:"series,omitempty"`
	Index          string               `json:"index,omitempty"`
	WeightCategory int                  `json:"weight_category_kg,omitempty"`
	Bets           []string             `json:"bets,omitempty"`
	PrizeName      string               `json:"prize_name,omitempty"`
	Prizes         [4]int               `json:"prizes"`
	Options        [4]int               `json:"options"`
	Competitors    int                  `json:"competitors"`
	Participants   []VolanteParticipant `json:"participants,omitempty"`
}

type Volante struct {
	Venue      string        `json:"venue"`
	Date       string        `json:"date"`
	Meeting    int           `json:"meeting"`
	SourceFile string        `json:"source_file"`
	Races      []VolanteRace `json:"races"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// VolanteFile is a volante PDF registered from a mailbox or a local folder.
type VolanteFile struct {
	ID         int
	Venue      string
	Path       string
	Hash       string
	Provider   string
	MessageID  string
	Subject    string
	ReceivedAt string
	Status     string
}

type EventStatus struct {
	Venue     string `json:"venue"`
	Date      string `json:"date"`
	Program   bool   `json:"program"`
	Results   bool   `json:"results"`
	Volante   bool   `json:"volante"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Flags renders the status as the "P R V" triple, "-" for missing stages.
func (s EventStatus) Flags() string {
	flag := func(ok bool, stage Stage) string {
		if ok {
			return string(stage)
		}
		return "-"
	}
	return flag(s.Program, StageProgram) + flag(s.Results, StageResults) + flag(s.Volante, StageVolante)
}

func (s *EventStatus) Set(stage Stage) {
	switch stage {
	case StageProgram:
		s.Program = true
	case StageResults:
		s.Results = true
	case StageVolante:
		s.Volante = true
	}
}

type ScrapeLog struct {
	Kind     string
	Venue    string
	Date     string
	Status   string
	Races    int
	Rows     int
	Skipped  int
	Message  string
	Duration float64
}

// ResultExportRow is a stored canonical result row joined with its race.
type ResultExportRow struct {
	Venue      string
	Date       string
	RaceNumber int
	Row        int
	Record     normalize.Record
	Sire       string
	RunnerID   *int
}
