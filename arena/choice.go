package arena

import "fmt"

// Choice is the canonical encoding of an agent's decision. It is used
// uniformly on the wire, in commit preimages and in stored results.
type Choice uint8

const (
	ChoiceNone Choice = iota
	ChoiceSplit
	ChoiceSteal
)

func (c Choice) String() string {
	switch c {
	case ChoiceSplit:
		return "split"
	case ChoiceSteal:
		return "steal"
	case ChoiceNone:
		return "none"
	}
	return fmt.Sprintf("choice(%d)", uint8(c))
}

// Valid reports whether c is a playable choice.
func (c Choice) Valid() bool {
	return c == ChoiceSplit || c == ChoiceSteal
}

// Outcome is one of the four mutually exclusive pool outcomes.
type Outcome int

const (
	OutcomeBothSplit Outcome = iota
	OutcomeASteals
	OutcomeBSteals
	OutcomeBothSteal
)

const NumOutcomes = 4

func (o Outcome) String() string {
	switch o {
	case OutcomeBothSplit:
		return "both_split"
	case OutcomeASteals:
		return "a_steals"
	case OutcomeBSteals:
		return "b_steals"
	case OutcomeBothSteal:
		return "both_steal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ParseOutcome maps the wire spelling back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "both_split":
		return OutcomeBothSplit, nil
	case "a_steals":
		return OutcomeASteals, nil
	case "b_steals":
		return OutcomeBSteals, nil
	case "both_steal":
		return OutcomeBothSteal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// Payoff applies the symmetric payoff matrix to a pair of choices:
// split/split 3-3, split/steal 0-5, steal/steal 0-0.
func Payoff(a, b Choice) (pointsA, pointsB int, outcome Outcome) {
	switch {
	case a == ChoiceSplit && b == ChoiceSplit:
		return 3, 3, OutcomeBothSplit
	case a == ChoiceSteal && b == ChoiceSplit:
		return 5, 0, OutcomeASteals
	case a == ChoiceSplit && b == ChoiceSteal:
		return 0, 5, OutcomeBSteals
	default:
		return 0, 0, OutcomeBothSteal
	}
}
