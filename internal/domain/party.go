package domain

import "fmt"

// Party — участник переписки. Id клиентов и фрилансеров живут в разных таблицах.
type Party struct {
	Role Role  `json:"role"`
	ID   int64 `json:"id"`
}

func (p Party) String() string {
	return fmt.Sprintf("%s:%d", p.Role, p.ID)
}

func (p Party) IsZero() bool { return p.ID == 0 && p.Role == "" }

// Pair адресует переписку и комнату realtime-канала.
type Pair struct {
	ClientID     int64 `json:"client_id"`
	FreelancerID int64 `json:"freelancer_id"`
}

func (p Pair) RoomKey() string {
	return fmt.Sprintf("c%d-f%d", p.ClientID, p.FreelancerID)
}

func (p Pair) Valid() bool {
	return p.ClientID > 0 && p.FreelancerID > 0
}

// Has — является ли party одной из сторон пары.
func (p Pair) Has(party Party) bool {
	switch party.Role {
	case RoleClient:
		return party.ID == p.ClientID
	case RoleFreelancer:
		return party.ID == p.FreelancerID
	default:
		return false
	}
}

// Other возвращает вторую сторону пары относительно me.
func (p Pair) Other(me Party) Party {
	if me.Role == RoleClient {
		return Party{Role: RoleFreelancer, ID: p.FreelancerID}
	}
	return Party{Role: RoleClient, ID: p.ClientID}
}

// PairOf собирает пару из двух сторон разных ролей.
func PairOf(a, b Party) (Pair, error) {
	if !a.Role.Valid() || !b.Role.Valid() || a.Role == b.Role {
		return Pair{}, fmt.Errorf("%w: %s / %s", ErrNotParticipant, a, b)
	}
	if a.Role == RoleClient {
		return Pair{ClientID: a.ID, FreelancerID: b.ID}, nil
	}
	return Pair{ClientID: b.ID, FreelancerID: a.ID}, nil
}

// Profile — публичная карточка стороны (имя и аватар).
type Profile struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}
