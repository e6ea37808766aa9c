package pipeline

import (
	"sort"

	"hipica/internal"
	"hipica/internal/normalize"
	"hipica/internal/util"
)

const (
	MatchNumberName = "number+name"
	MatchName       = "name"
	MatchFuzzy      = "fuzzy"
	MatchNumber     = "number"

	fuzzyGap = 0.05
)

// RunnerMatch links a result record to a program runner.
type RunnerMatch struct {
	Runner internal.Runner
	Method string
	Score  float64
}

type runnerIndex struct {
	byID       map[int]internal.Runner
	byNumber   map[int][]internal.Runner
	byName     map[string][]internal.Runner
	tokenToIDs map[string]map[int]struct{}
	nameByID   map[int]string
}

func buildRunnerIndex(runners []internal.Runner) runnerIndex {
	idx := runnerIndex{
		byID:       map[int]internal.Runner{},
		byNumber:   map[int][]internal.Runner{},
		byName:     map[string][]internal.Runner{},
		tokenToIDs: map[string]map[int]struct{}{},
		nameByID:   map[int]string{},
	}
	for _, r := range runners {
		idx.byID[r.ID] = r
		name := util.NormalizeName(r.Name)
		idx.nameByID[r.ID] = name
		idx.byName[name] = append(idx.byName[name], r)
		if r.Number > 0 {
			idx.byNumber[r.Number] = append(idx.byNumber[r.Number], r)
		}
		for _, token := range util.Tokenize(name) {
			if _, ok := idx.tokenToIDs[token]; !ok {
				idx.tokenToIDs[token] = map[int]struct{}{}
			}
			idx.tokenToIDs[token][r.ID] = struct{}{}
		}
	}
	return idx
}

// RunnerMatcher attaches program runner ids to normalized result records of
// one race.
type RunnerMatcher struct {
	index     runnerIndex
	threshold float64
}

func NewRunnerMatcher(runners []internal.Runner, threshold float64) *RunnerMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.80
	}
	return &RunnerMatcher{index: buildRunnerIndex(runners), threshold: threshold}
}

// Match tries, in order: saddle number plus name, exact normalized name,
// fuzzy name and, only when the record carries no name, the saddle number.
func (m *RunnerMatcher) Match(rec normalize.Record) (RunnerMatch, bool) {
	nameValue := rec.Get(normalize.FieldName)
	numberValue := rec.Get(normalize.FieldHorseNumber)
	name := ""
	if nameValue.Available() {
		name = util.NormalizeName(nameValue.String())
	}

	if numberValue.Available() && name != "" {
		for _, r := range m.index.byNumber[numberValue.Int()] {
			if m.index.nameByID[r.ID] == name {
				return RunnerMatch{Runner: r, Method: MatchNumberName, Score: 1}, true
			}
		}
	}

	if name != "" {
		if exact := m.index.byName[name]; len(exact) == 1 {
			return RunnerMatch{Runner: exact[0], Method: MatchName, Score: 0.95}, true
		}

		candidates := m.rank(name)
		if len(candidates) > 0 {
			top := candidates[0]
			gap := top.Score
			if len(candidates) > 1 {
				gap = top.Score - candidates[1].Score
			}
			if top.Score >= m.threshold && gap >= fuzzyGap {
				return top, true
			}
		}
		return RunnerMatch{}, false
	}

	if numberValue.Available() {
		if byNumber := m.index.byNumber[numberValue.Int()]; len(byNumber) == 1 {
			return RunnerMatch{Runner: byNumber[0], Method: MatchNumber, Score: 0.5}, true
		}
	}
	return RunnerMatch{}, false
}

func (m *RunnerMatcher) rank(query string) []RunnerMatch {
	queryTokens := util.Tokenize(query)
	ids := map[int]struct{}{}
	for _, token := range queryTokens {
		for id := range m.index.tokenToIDs[token] {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		for id := range m.index.byID {
			ids[id] = struct{}{}
		}
	}

	out := make([]RunnerMatch, 0, len(ids))
	for id := range ids {
		candidate := m.index.nameByID[id]
		score := scoreName(query, candidate, queryTokens, util.Tokenize(candidate))
		out = append(out, RunnerMatch{Runner: m.index.byID[id], Method: MatchFuzzy, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Runner.ID < out[j].Runner.ID
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}
