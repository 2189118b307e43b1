package models

// Province is static reference geography, seeded once.
type Province struct {
	BaseModel

	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	Cities []City `gorm:"foreignKey:ProvinceID" json:"cities,omitempty"`
}

// City belongs to exactly one province.
type City struct {
	BaseModel

	Name       string   `gorm:"not null;index" json:"name"`
	ProvinceID string   `gorm:"type:uuid;not null;index" json:"province_id"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}
