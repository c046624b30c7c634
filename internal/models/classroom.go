package models

type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Group struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Students []Student `json:"students"`
}

type Classroom struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Students []Student `json:"students"`
	Groups   []Group   `json:"groups"`
}

type Lesson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DefaultLessons ships with the product and is merged ahead of any custom
// lessons stored for the account.
func DefaultLessons() []Lesson {
	return []Lesson{
		{ID: "lesson1", Name: "I Feel"},
		{ID: "lesson2", Name: "Hungry, Hungry Robot"},
		{ID: "lesson3", Name: "Grid Challenges"},
		{ID: "lesson4", Name: "Duck Duck Robot"},
	}
}
