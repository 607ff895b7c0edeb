// Package testutils provides hand-built populations and a scripted
// simulation engine for tests.
package testutils

import (
	"math"
	"slices"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// StandardElement is the child element used by the fixtures.
const StandardElement = 3626

// Person is one member of a test household.
type Person struct {
	Age        float64
	Child      bool
	Employment float64
	InPoverty  bool
	Affected   bool

	// BornBeforeLimit marks a child protected from the limit.
	BornBeforeLimit bool
}

// Household is one household of a test population. Each household is
// also one benefit unit.
type Household struct {
	// ID is the household and benefit unit id. Zero assigns index+1.
	ID        int64
	Weight    float64
	NetIncome float64
	Decile    float64
	People    []Person

	// UC and CTC are the benefit unit's annual awards, repeated on every
	// member row.
	UC, CTC float64
	// CTCAffected flags a tax credit unit capped by the limit.
	CTCAffected bool
}

// Adult returns an adult with the given employment income.
func Adult(employment float64, inPoverty bool) Person {
	return Person{Age: 35, Employment: employment, InPoverty: inPoverty}
}

// Child returns a child of the given age.
func Child(age float64, inPoverty, affected bool) Person {
	return Person{Age: age, Child: true, InPoverty: inPoverty, Affected: affected}
}

// Protected returns a child born before the limit was introduced.
func Protected(age float64, inPoverty bool) Person {
	return Person{Age: age, Child: true, InPoverty: inPoverty, BornBeforeLimit: true}
}

// Population is an ordered list of households.
type Population []Household

// Clone deep-copies the population.
func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, h := range p {
		h.People = slices.Clone(h.People)
		out[i] = h
	}
	return out
}

func (p Population) id(i int) int64 {
	if p[i].ID != 0 {
		return p[i].ID
	}
	return int64(i + 1)
}

// RaiseLimit returns the population under a child limit of limit. Each
// household keeps max(0, children-limit) affected children, gains
// element for every child freed from the limit and leaves poverty once
// no child is affected. A tax credit unit stops being capped once its
// children fit under the limit. Pass math.Inf(1) to abolish the limit.
func (p Population) RaiseLimit(limit, element float64) Population {
	out := p.Clone()
	for i := range out {
		h := &out[i]
		var children, affected int
		for _, m := range h.People {
			if m.Child {
				children++
				if m.Affected {
					affected++
				}
			}
		}
		remaining := int(math.Max(0, float64(children)-limit))
		if remaining == 0 {
			h.CTCAffected = false
		}
		freed := affected - remaining
		if freed <= 0 {
			continue
		}
		for j := range h.People {
			if freed == 0 {
				break
			}
			if h.People[j].Affected {
				h.People[j].Affected = false
				h.NetIncome += element
				freed--
			}
		}
		if remaining == 0 {
			for j := range h.People {
				h.People[j].InPoverty = false
			}
		}
	}
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PersonColumns returns the person-level variables, one row per person
// in household order.
func (p Population) PersonColumns() map[string][]float64 {
	cols := make(map[string][]float64, len(domain.PersonVariables))
	for _, v := range domain.PersonVariables {
		cols[v] = nil
	}
	var pid float64
	for i, h := range p {
		id := float64(p.id(i))
		for _, m := range h.People {
			pid++
			cols[domain.VarPersonID] = append(cols[domain.VarPersonID], pid)
			cols[domain.VarHouseholdID] = append(cols[domain.VarHouseholdID], id)
			cols[domain.VarBenunitID] = append(cols[domain.VarBenunitID], id)
			cols[domain.VarIsChild] = append(cols[domain.VarIsChild], boolValue(m.Child))
			cols[domain.VarIsAdult] = append(cols[domain.VarIsAdult], boolValue(!m.Child))
			cols[domain.VarAge] = append(cols[domain.VarAge], m.Age)
			cols[domain.VarPersonWeight] = append(cols[domain.VarPersonWeight], h.Weight)
			cols[domain.VarHouseholdWeight] = append(cols[domain.VarHouseholdWeight], h.Weight)
			cols[domain.VarInPoverty] = append(cols[domain.VarInPoverty], boolValue(m.InPoverty))
			cols[domain.VarEmployment] = append(cols[domain.VarEmployment], m.Employment)
			cols[domain.VarUniversalCredit] = append(cols[domain.VarUniversalCredit], h.UC)
			cols[domain.VarChildTaxCredit] = append(cols[domain.VarChildTaxCredit], h.CTC)
			cols[domain.VarUCLimitAffected] = append(cols[domain.VarUCLimitAffected], boolValue(m.Affected))
			cols[domain.VarCTCLimitAffected] = append(cols[domain.VarCTCLimitAffected], boolValue(h.CTCAffected))
			cols[domain.VarUCBornBeforeLimit] = append(cols[domain.VarUCBornBeforeLimit], boolValue(m.BornBeforeLimit))
		}
	}
	return cols
}

// HouseholdColumns returns the household-level variables.
func (p Population) HouseholdColumns() map[string][]float64 {
	cols := make(map[string][]float64, len(domain.HouseholdVariables))
	for i, h := range p {
		cols[domain.VarHouseholdID] = append(cols[domain.VarHouseholdID], float64(p.id(i)))
		cols[domain.VarHouseholdWeight] = append(cols[domain.VarHouseholdWeight], h.Weight)
		cols[domain.VarHouseholdNetIncome] = append(cols[domain.VarHouseholdNetIncome], h.NetIncome)
		cols[domain.VarIncomeDecile] = append(cols[domain.VarIncomeDecile], h.Decile)
	}
	return cols
}

// Frames builds the person and household frames.
func (p Population) Frames() (person, household domain.Frame, err error) {
	if person, err = domain.FrameFromColumns(p.PersonColumns()); err != nil {
		return domain.Frame{}, domain.Frame{}, err
	}
	if household, err = domain.FrameFromColumns(p.HouseholdColumns()); err != nil {
		return domain.Frame{}, domain.Frame{}, err
	}
	return person, household, nil
}

// ThreeFamilies is a small population whose aggregates can be checked by
// hand:
//
//	household 1: weight 100, net 20000, decile 1, UC 9000, non-working
//	             adult and three children aged 8, 4 and 1; the youngest
//	             is affected; everyone is in poverty
//	household 2: weight 50, net 30000, decile 2, UC 6000, CTC 7000 and
//	             capped for CTC, working adult and four children aged 12,
//	             10, 6 and 2; the two eldest were born before the limit
//	             and the two youngest are affected
//	household 3: weight 200, net 40000, decile 3, two working adults and
//	             two children aged 5 and 3
//
// Weighted totals: 900 children, 300 in poverty, 200 affected children,
// 150 affected families, 200 CTC-affected children, 100 children born
// before the limit, 150 UC families and 50 CTC families. Of 1450
// weighted persons, 400 are in poverty.
func ThreeFamilies() Population {
	return Population{
		{
			Weight: 100, NetIncome: 20000, Decile: 1, UC: 9000,
			People: []Person{
				Adult(0, true),
				Child(8, true, false),
				Child(4, true, false),
				Child(1, true, true),
			},
		},
		{
			Weight: 50, NetIncome: 30000, Decile: 2, UC: 6000, CTC: 7000, CTCAffected: true,
			People: []Person{
				Adult(15000, false),
				Protected(12, false),
				Protected(10, false),
				Child(6, false, true),
				Child(2, false, true),
			},
		},
		{
			Weight: 200, NetIncome: 40000, Decile: 3,
			People: []Person{
				Adult(20000, false),
				Adult(20000, false),
				Child(5, false, false),
				Child(3, false, false),
			},
		},
	}
}
