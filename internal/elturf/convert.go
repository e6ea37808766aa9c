package elturf

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"hipica/internal"
	"hipica/internal/util"
)

func toMeeting(raw map[string]any) (internal.Meeting, error) {
	id, ok := toInt(raw["id_reunion"])
	if !ok {
		return internal.Meeting{}, errors.New("meeting without id_reunion")
	}
	date := toString(raw["fecha_reunion"])
	if date == "" {
		return internal.Meeting{}, errors.New("meeting without fecha_reunion")
	}
	if t, ok := util.ParseSpanishDate(date); ok {
		date = t.Format(util.DateLayout)
	} else if len(date) >= 10 {
		date = date[:10]
	}

	m := internal.Meeting{
		ID:        id,
		Date:      date,
		VenueName: toString(raw["nombre_hipodromo"]),
		VenueCode: strings.ToUpper(toString(raw["abreviatura_hipodromo"])),
		Director:  toString(raw["director_turno"]),
	}
	m.Number, _ = toInt(raw["numero_reunion"])
	if m.VenueCode == "" {
		if v, ok := internal.LookupVenue(m.VenueName); ok {
			m.VenueCode = v.Code
		}
	}

	races, _ := raw["carreras"].([]any)
	for _, item := range races {
		rm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if race, ok := toRace(rm); ok {
			m.Races = append(m.Races, race)
		}
	}
	return m, nil
}

func toRace(raw map[string]any) (internal.Race, bool) {
	id, ok := toInt(raw["id_carrera"])
	if !ok {
		return internal.Race{}, false
	}
	r := internal.Race{
		ID:        id,
		PostTime:  toString(raw["hora_carrera"]),
		Name:      toString(raw["nombre_premio"]),
		Prize:     toFloatPtr(raw["premio1"]),
		Classic:   toBool(raw["es_clasico"]),
		Kind:      toString(raw["tipo_carrera"]),
		Surface:   toString(raw["superficie"]),
		Condition: toString(raw["condicion"]),
		Index:     toString(raw["indice"]),
	}
	r.Number, _ = toInt(raw["correlativo"])
	if d, ok := toInt(raw["distance"]); ok {
		r.Distance = d
	} else {
		r.Distance, _ = toInt(raw["distancia"])
	}
	return r, true
}

func toRunner(raw map[string]any) (internal.Runner, bool) {
	id, ok := toInt(raw["id_ejemplar"])
	name := toString(raw["nombre"])
	if !ok || name == "" {
		return internal.Runner{}, false
	}
	r := internal.Runner{
		ID:      id,
		Name:    name,
		Jockey:  toString(raw["nom_jinete"]),
		Trainer: toString(raw["entrenador"]),
		Owner:   toString(raw["dueno"]),
		Weight:  toFloatPtr(raw["peso_jinete"]),
	}
	r.Number, _ = toInt(raw["num_mandil"])
	r.Gate, _ = toInt(raw["num_partidor"])
	r.JockeyID, _ = toInt(raw["id_jinete"])
	r.TrainerID, _ = toInt(raw["id_entrenador"])
	r.OwnerID, _ = toInt(raw["id_dueno"])
	if w, ok := toInt(raw["peso_ejemplar"]); ok && w > 0 {
		r.HorseWeight = &w
	}
	return r, true
}

// The APIs mix numbers and numeric strings for the same keys.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		if f, ok := util.ParseAmount(t); ok {
			return &f
		}
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return util.NormalizeSpaces(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "1" || s == "s" || s == "si" || s == "sí" || s == "true"
	default:
		return false
	}
}
