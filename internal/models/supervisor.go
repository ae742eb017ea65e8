package models

type Supervisor struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	FirstName   string `gorm:"size:50;not null" json:"first_name"`
	LastName    string `gorm:"size:50;not null" json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `gorm:"size:30" json:"phone_number"`
}

func (Supervisor) TableName() string {
	return "supervisors"
}

func (s *Supervisor) FullName() string {
	return s.FirstName + " " + s.LastName
}
