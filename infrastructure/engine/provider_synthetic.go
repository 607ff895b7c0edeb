package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// Constants of the toy benefit rules used by the synthetic engine.
const (
	syntheticDefaultSize = 2000

	ucStandardAllowance = 5000.0
	ucChildElement      = 3626.0
	ucTaperRate         = 0.55
	ucWorkAllowance     = 7000.0
	ucIncomeCeiling     = 32000.0
	ctcChildElement     = 3455.0
	childBenefit        = 1300.0
	netOfTaxShare       = 0.8
	povertyLine         = 11000.0
	legacyShare         = 0.1

	// limitIntroduced is the first year the limit applied to new births.
	limitIntroduced = 2017
)

func init() {
	RegisterProviderFactory("synthetic", func(cfg ClientConfig) (CoreEngine, error) {
		return NewSyntheticEngine(cfg.Seed, cfg.Size), nil
	})
}

// household is one generated household. Every household holds exactly
// one benefit unit with the same id.
type household struct {
	id         int64
	weight     float64
	adults     []int
	children   []int // eldest first
	employment float64
	legacy     bool
}

// population is the scenario-independent part of a year's data.
type population struct {
	year       int
	personID   []float64
	hhIndex    []int
	age        []float64
	isChild    []float64
	employment []float64
	households []household
}

// outcome holds the scenario-dependent per-person and per-household
// results for one population.
type outcome struct {
	uc, ctc            []float64 // per person, benefit unit amount on the head
	ucAffected         []float64
	ctcAffected        []float64
	inPoverty          []float64
	netIncome          []float64 // per household
	decile             []float64 // per household
	ucByHH, ctcByHH    []float64
	ctcAffectedByHH    []float64
	ucAffectedCountsHH []float64
}

// SyntheticEngine is an in-process engine over a seeded toy population
// with a simplified child-limit rule. Results are deterministic for a
// given seed, size and year, and unit order is stable across scenarios.
type SyntheticEngine struct {
	seed int64
	size int

	mu   sync.Mutex
	pops map[int]*population
}

var _ CoreEngine = (*SyntheticEngine)(nil)

// NewSyntheticEngine creates a synthetic engine with size households.
// A non-positive size uses the default.
func NewSyntheticEngine(seed int64, size int) *SyntheticEngine {
	if size <= 0 {
		size = syntheticDefaultSize
	}
	return &SyntheticEngine{seed: seed, size: size, pops: make(map[int]*population)}
}

// Name identifies the backend.
func (s *SyntheticEngine) Name() string { return "synthetic" }

// Calculate implements CoreEngine.
func (s *SyntheticEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyContextError(err)
	}

	pop := s.population(year)
	out := pop.simulate(limitFor(scenario, year, "universal_credit"), limitFor(scenario, year, "child_tax_credit"))

	switch level {
	case domain.LevelPerson:
		return pop.personVariable(out, variable)
	case domain.LevelHousehold, domain.LevelBenunit:
		return pop.householdVariable(out, variable)
	default:
		return nil, fmt.Errorf("%w: %w: %q", ports.ErrInvalidResponse, ErrUnsupportedLevel, level)
	}
}

// limitFor returns the child limit a scenario sets for the benefit whose
// parameter path contains program, or the baseline limit.
func limitFor(scenario domain.Scenario, year int, program string) float64 {
	for _, o := range scenario.Overrides {
		if o.Year == year && strings.Contains(o.Path, program) && strings.HasSuffix(o.Path, ".limit.child_count") {
			return o.Value
		}
	}
	return domain.DefaultChildLimit
}

func (s *SyntheticEngine) population(year int) *population {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pops[year]; ok {
		return p
	}
	p := generatePopulation(s.seed, year, s.size)
	s.pops[year] = p
	return p
}

func generatePopulation(seed int64, year, size int) *population {
	// #nosec G115 G404 - deterministic synthetic data
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(year)))
	p := &population{year: year, households: make([]household, size)}

	addPerson := func(hh int, age float64, child bool, employment float64) int {
		idx := len(p.personID)
		p.personID = append(p.personID, float64(idx+1))
		p.hhIndex = append(p.hhIndex, hh)
		p.age = append(p.age, age)
		if child {
			p.isChild = append(p.isChild, 1)
		} else {
			p.isChild = append(p.isChild, 0)
		}
		p.employment = append(p.employment, employment)
		return idx
	}

	for h := range p.households {
		hh := household{
			id:     int64(h + 1),
			weight: 500 + math.Round(rng.Float64()*1500),
			legacy: rng.Float64() < legacyShare,
		}

		nAdults := 1 + rng.IntN(2)
		for range nAdults {
			income := 0.0
			if rng.Float64() < 0.6 {
				income = math.Round(6000 + rng.Float64()*50000)
			}
			hh.employment += income
			hh.adults = append(hh.adults, addPerson(h, float64(20+rng.IntN(40)), false, income))
		}

		nChildren := childCount(rng)
		ages := make([]float64, nChildren)
		for i := range ages {
			ages[i] = float64(rng.IntN(18))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(ages)))
		for _, a := range ages {
			hh.children = append(hh.children, addPerson(h, a, true, 0))
		}

		p.households[h] = hh
	}
	return p
}

// childCount draws from a distribution with a long tail of large
// families so that every limit in 3..9 binds for someone.
func childCount(rng *rand.Rand) int {
	r := rng.Float64()
	switch {
	case r < 0.35:
		return 0
	case r < 0.6:
		return 1
	case r < 0.8:
		return 2
	case r < 0.9:
		return 3
	case r < 0.95:
		return 4
	default:
		return 5 + rng.IntN(6)
	}
}

func (p *population) simulate(ucLimit, ctcLimit float64) outcome {
	n := len(p.personID)
	nh := len(p.households)
	out := outcome{
		uc:                 make([]float64, n),
		ctc:                make([]float64, n),
		ucAffected:         make([]float64, n),
		ctcAffected:        make([]float64, n),
		inPoverty:          make([]float64, n),
		netIncome:          make([]float64, nh),
		decile:             make([]float64, nh),
		ucByHH:             make([]float64, nh),
		ctcByHH:            make([]float64, nh),
		ctcAffectedByHH:    make([]float64, nh),
		ucAffectedCountsHH: make([]float64, nh),
	}

	equivalised := make([]float64, nh)
	for h, hh := range p.households {
		kids := len(hh.children)
		var uc, ctc float64
		eligible := hh.employment < ucIncomeCeiling

		switch {
		case eligible && hh.legacy:
			supported := min(float64(kids), ctcLimit)
			ctc = ctcChildElement * supported
			if float64(kids) > ctcLimit {
				out.ctcAffectedByHH[h] = 1
				for _, idx := range append(append([]int{}, hh.adults...), hh.children...) {
					out.ctcAffected[idx] = 1
				}
			}
		case eligible:
			taper := ucTaperRate * math.Max(0, hh.employment-ucWorkAllowance)
			supported := min(float64(kids), ucLimit)
			uc = math.Max(0, ucStandardAllowance+ucChildElement*supported-taper)
			// A child is limited when the unit would be entitled to
			// support for it without the limit.
			if ucStandardAllowance+ucChildElement*float64(kids)-taper > 0 {
				for i, idx := range hh.children {
					if float64(i) >= ucLimit {
						out.ucAffected[idx] = 1
						out.ucAffectedCountsHH[h]++
					}
				}
			}
		}

		head := hh.adults[0]
		out.uc[head] = uc
		out.ctc[head] = ctc
		out.ucByHH[h] = uc
		out.ctcByHH[h] = ctc

		net := hh.employment*netOfTaxShare + uc + ctc + childBenefit*float64(kids)
		out.netIncome[h] = net

		scale := 1 + 0.5*float64(len(hh.adults)-1) + 0.3*float64(kids)
		equivalised[h] = net / scale
		poor := 0.0
		if equivalised[h] < povertyLine {
			poor = 1
		}
		for _, idx := range hh.adults {
			out.inPoverty[idx] = poor
		}
		for _, idx := range hh.children {
			out.inPoverty[idx] = poor
		}
	}

	p.assignDeciles(equivalised, out.decile)
	return out
}

// assignDeciles ranks households by equivalised income and cuts the
// weighted distribution into tenths.
func (p *population) assignDeciles(equivalised, deciles []float64) {
	order := make([]int, len(equivalised))
	var total float64
	for i := range order {
		order[i] = i
		total += p.households[i].weight
	}
	sort.SliceStable(order, func(a, b int) bool { return equivalised[order[a]] < equivalised[order[b]] })

	var cum float64
	for _, h := range order {
		cum += p.households[h].weight
		d := math.Ceil(10 * cum / total)
		deciles[h] = math.Min(10, math.Max(1, d))
	}
}

// bornBeforeLimit flags a child whose age puts its birth before the
// limit was introduced.
func (p *population) bornBeforeLimit(i int) float64 {
	if p.isChild[i] == 1 && p.age[i] > float64(p.year-limitIntroduced) {
		return 1
	}
	return 0
}

func (p *population) personVariable(out outcome, variable string) ([]float64, error) {
	n := len(p.personID)
	values := make([]float64, n)
	for i := range values {
		hh := p.households[p.hhIndex[i]]
		switch variable {
		case domain.VarPersonID:
			values[i] = p.personID[i]
		case domain.VarHouseholdID, domain.VarBenunitID:
			values[i] = float64(hh.id)
		case domain.VarIsChild:
			values[i] = p.isChild[i]
		case domain.VarIsAdult:
			values[i] = 1 - p.isChild[i]
		case domain.VarAge:
			values[i] = p.age[i]
		case domain.VarPersonWeight, domain.VarHouseholdWeight:
			values[i] = hh.weight
		case domain.VarInPoverty:
			values[i] = out.inPoverty[i]
		case domain.VarEmployment:
			values[i] = p.employment[i]
		case domain.VarUniversalCredit:
			values[i] = out.uc[i]
		case domain.VarChildTaxCredit:
			values[i] = out.ctc[i]
		case domain.VarUCLimitAffected:
			values[i] = out.ucAffected[i]
		case domain.VarCTCLimitAffected:
			values[i] = out.ctcAffected[i]
		case domain.VarUCBornBeforeLimit:
			values[i] = p.bornBeforeLimit(i)
		case domain.VarHouseholdNetIncome:
			values[i] = out.netIncome[p.hhIndex[i]]
		case domain.VarIncomeDecile:
			values[i] = out.decile[p.hhIndex[i]]
		default:
			return nil, fmt.Errorf("%w: %w: %q", ports.ErrInvalidResponse, ErrUnknownVariable, variable)
		}
	}
	return values, nil
}

func (p *population) householdVariable(out outcome, variable string) ([]float64, error) {
	values := make([]float64, len(p.households))
	for h, hh := range p.households {
		switch variable {
		case domain.VarHouseholdID, domain.VarBenunitID:
			values[h] = float64(hh.id)
		case domain.VarHouseholdWeight:
			values[h] = hh.weight
		case domain.VarHouseholdNetIncome:
			values[h] = out.netIncome[h]
		case domain.VarIncomeDecile:
			values[h] = out.decile[h]
		case domain.VarEmployment:
			values[h] = hh.employment
		case domain.VarUniversalCredit:
			values[h] = out.ucByHH[h]
		case domain.VarChildTaxCredit:
			values[h] = out.ctcByHH[h]
		case domain.VarUCLimitAffected:
			values[h] = out.ucAffectedCountsHH[h]
		case domain.VarCTCLimitAffected:
			values[h] = out.ctcAffectedByHH[h]
		default:
			return nil, fmt.Errorf("%w: %w: %q at household level", ports.ErrInvalidResponse, ErrUnknownVariable, variable)
		}
	}
	return values, nil
}
