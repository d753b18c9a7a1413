package domain

import "time"

type Contract struct {
	ID           int64      `json:"id" db:"id"`
	Code         string     `json:"contract_code,omitempty" db:"contract_code"`
	TaskID       int64      `json:"task_id,omitempty" db:"task_id"`
	ClientID     int64      `json:"client_id" db:"client_id"`
	FreelancerID int64      `json:"freelancer_id" db:"freelancer_id"`
	AgreedAmount string     `json:"agreed_amount,omitempty" db:"agreed_amount"`
	Status       string     `json:"status" db:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`

	Client     Profile `json:"client"`
	Freelancer Profile `json:"freelancer"`
}

func (c Contract) Pair() Pair {
	return Pair{ClientID: c.ClientID, FreelancerID: c.FreelancerID}
}

// Counterpart — собеседник, выведенный из контракта.
type Counterpart struct {
	Role  Role   `json:"role"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func (c Counterpart) Party() Party { return Party{Role: c.Role, ID: c.ID} }

// CounterpartsOf — уникальные собеседники me в порядке следования контрактов.
func CounterpartsOf(me Party, contracts []Contract) []Counterpart {
	seen := make(map[int64]struct{}, len(contracts))
	out := make([]Counterpart, 0, len(contracts))
	for _, c := range contracts {
		if !c.Pair().Has(me) {
			continue
		}
		other := c.Pair().Other(me)
		if _, dup := seen[other.ID]; dup {
			continue
		}
		seen[other.ID] = struct{}{}

		prof := c.Freelancer
		if other.Role == RoleClient {
			prof = c.Client
		}
		out = append(out, Counterpart{
			Role:  other.Role,
			ID:    other.ID,
			Name:  prof.Name,
			Image: prof.Image,
		})
	}
	return out
}
