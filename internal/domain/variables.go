package domain

// Level names the entity an engine variable is mapped to before it is
// returned. Person-level frames are the default for cohort analysis.
type Level string

// Supported aggregation levels.
const (
	LevelPerson    Level = "person"
	LevelHousehold Level = "household"
	LevelBenunit   Level = "benunit"
)

// Engine variable names used by the analysis. They match the names
// exposed by the microsimulation engine.
const (
	VarPersonID        = "person_id"
	VarHouseholdID     = "household_id"
	VarBenunitID       = "benunit_id"
	VarIsChild         = "is_child"
	VarIsAdult         = "is_adult"
	VarAge             = "age"
	VarPersonWeight    = "person_weight"
	VarHouseholdWeight = "household_weight"
	VarInPoverty       = "in_poverty"
	VarEmployment      = "employment_income"
	VarUniversalCredit = "universal_credit"
	VarChildTaxCredit  = "child_tax_credit"

	// VarUCLimitAffected flags a person in a benefit unit whose Universal
	// Credit child element is capped by the child limit.
	VarUCLimitAffected = "uc_is_child_limit_affected"

	// VarCTCLimitAffected is the benefit-unit level Child Tax Credit flag,
	// repeated on every member row when mapped to persons.
	VarCTCLimitAffected = "ctc_child_limit_affected"

	// VarUCBornBeforeLimit flags a child born before the limit was
	// introduced, whose element is protected from it.
	VarUCBornBeforeLimit = "uc_is_child_born_before_child_limit"

	VarHouseholdNetIncome = "household_net_income"
	VarIncomeDecile       = "household_income_decile"
)

// PersonVariables lists the person-level variables loaded for every
// scenario snapshot.
var PersonVariables = []string{
	VarPersonID,
	VarHouseholdID,
	VarBenunitID,
	VarIsChild,
	VarIsAdult,
	VarAge,
	VarPersonWeight,
	VarHouseholdWeight,
	VarInPoverty,
	VarEmployment,
	VarUniversalCredit,
	VarChildTaxCredit,
	VarUCLimitAffected,
	VarCTCLimitAffected,
	VarUCBornBeforeLimit,
}

// HouseholdVariables lists the household-level variables loaded for every
// scenario snapshot.
var HouseholdVariables = []string{
	VarHouseholdID,
	VarHouseholdWeight,
	VarHouseholdNetIncome,
	VarIncomeDecile,
}
