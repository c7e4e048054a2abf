package standing

// Policy — ограничения и требования, вытекающие из статуса.
type Policy struct {
	CanRegister        bool   `json:"can_register"`
	RequiresCounseling bool   `json:"requires_counseling"`
	MaxCreditHours     int    `json:"max_credit_hours"`
	RequiredActions    string `json:"required_actions"`
}

// policies — постоянная таблица, в рантайме не настраивается.
var policies = map[State]Policy{
	Normal: {
		CanRegister:        true,
		RequiresCounseling: false,
		MaxCreditHours:     18,
		RequiredActions:    "No action required.",
	},
	AtRisk: {
		CanRegister:        true,
		RequiresCounseling: true,
		MaxCreditHours:     15,
		RequiredActions:    "Meet with an academic advisor and complete a study plan before registering.",
	},
	Probation: {
		CanRegister:        true,
		RequiresCounseling: true,
		MaxCreditHours:     12,
		RequiredActions:    "Mandatory counseling sessions; course load limited until GPA recovers to 2.0.",
	},
	Graduated: {
		CanRegister:        false,
		RequiresCounseling: false,
		MaxCreditHours:     0,
		RequiredActions:    "Program completed; registration is closed.",
	},
}

// PolicyFor возвращает политику статуса. Для неизвестного статуса — нулевая политика.
func PolicyFor(s State) Policy {
	return policies[s]
}

// Policy возвращает политику статуса.
func (s State) Policy() Policy {
	return PolicyFor(s)
}

// CanRegister — может ли студент записываться на курсы.
func (s State) CanRegister() bool { return policies[s].CanRegister }

// RequiresCounseling — нужна ли консультация.
func (s State) RequiresCounseling() bool { return policies[s].RequiresCounseling }

// MaxCreditHours — максимальная нагрузка в кредитах.
func (s State) MaxCreditHours() int { return policies[s].MaxCreditHours }
