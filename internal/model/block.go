package model

// Block is a purchasable bundle of subjects that defines one quiz's
// composition: one main subject, one addition subject and a list of
// mandatory subjects.
type Block struct {
	ID        string   `json:"_id"`
	Name      string   `json:"name"`
	Price     int      `json:"price"`
	Main      string   `json:"main"`
	Addition  string   `json:"addition"`
	Mandatory []string `json:"mandatory"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}
