package herd

// AnimalStatus is the lifecycle state of an animal in the herd.
type AnimalStatus string

const (
	StatusCalf      AnimalStatus = "calf"
	StatusHeifer    AnimalStatus = "heifer"
	StatusLactating AnimalStatus = "lactating"
	StatusDry       AnimalStatus = "dry"
	StatusPregnant  AnimalStatus = "pregnant"
	StatusSold      AnimalStatus = "sold"
	StatusDeceased  AnimalStatus = "deceased"
)

// AnimalStatuses lists every status in display order.
var AnimalStatuses = []AnimalStatus{
	StatusCalf, StatusHeifer, StatusLactating, StatusDry, StatusPregnant, StatusSold, StatusDeceased,
}

// Role is a user's permission level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
	RoleViewer  Role = "viewer"
)

type Animal struct {
	ID        int64        `json:"id"`
	TagNumber string       `json:"tagNumber"`
	Name      string       `json:"name,omitempty"`
	Breed     string       `json:"breed,omitempty"`
	BirthDate string       `json:"birthDate,omitempty"`
	Status    AnimalStatus `json:"status"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt string       `json:"createdAt,omitempty"`
	UpdatedAt string       `json:"updatedAt,omitempty"`
}

type AnimalInput struct {
	TagNumber string       `json:"tagNumber" validate:"required,max=32"`
	Name      string       `json:"name,omitempty" validate:"max=64"`
	Breed     string       `json:"breed,omitempty" validate:"max=64"`
	BirthDate string       `json:"birthDate,omitempty" validate:"omitempty,isodate"`
	Status    AnimalStatus `json:"status" validate:"required,animalStatus"`
	Notes     string       `json:"notes,omitempty"`
}

// AnimalUpdate replaces the editable fields of animal ID.
type AnimalUpdate struct {
	ID    int64
	Input AnimalInput
}

// StatusChange moves animal ID to Status.
type StatusChange struct {
	ID     int64        `json:"-"`
	Status AnimalStatus `json:"status" validate:"required,animalStatus"`
}

type BreedingRecord struct {
	ID                  int64  `json:"id"`
	AnimalID            int64  `json:"animalId"`
	BreedingDate        string `json:"breedingDate"`
	Method              string `json:"method"`
	Sire                string `json:"sire,omitempty"`
	ExpectedCalvingDate string `json:"expectedCalvingDate,omitempty"`
	Status              string `json:"status"`
	Notes               string `json:"notes,omitempty"`
}

type BreedingInput struct {
	AnimalID            int64  `json:"animalId" validate:"required,gt=0"`
	BreedingDate        string `json:"breedingDate" validate:"required,isodate"`
	Method              string `json:"method" validate:"required,oneof=natural artificial"`
	Sire                string `json:"sire,omitempty" validate:"max=64"`
	ExpectedCalvingDate string `json:"expectedCalvingDate,omitempty" validate:"omitempty,isodate"`
	Status              string `json:"status" validate:"required,oneof=pending confirmed failed calved"`
	Notes               string `json:"notes,omitempty"`
}

type BreedingUpdate struct {
	ID    int64
	Input BreedingInput
}

type HeatDetection struct {
	ID         int64  `json:"id"`
	AnimalID   int64  `json:"animalId"`
	DetectedAt string `json:"detectedAt"`
	Intensity  string `json:"intensity"`
	Signs      string `json:"signs,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type HeatInput struct {
	AnimalID   int64  `json:"animalId" validate:"required,gt=0"`
	DetectedAt string `json:"detectedAt" validate:"required,isodate"`
	Intensity  string `json:"intensity" validate:"required,oneof=low medium high"`
	Signs      string `json:"signs,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type MilkingRecord struct {
	ID       int64   `json:"id"`
	AnimalID int64   `json:"animalId"`
	Date     string  `json:"date"`
	Session  string  `json:"session"`
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

type MilkingInput struct {
	AnimalID int64   `json:"animalId" validate:"required,gt=0"`
	Date     string  `json:"date" validate:"required,isodate"`
	Session  string  `json:"session" validate:"required,oneof=morning afternoon evening"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Notes    string  `json:"notes,omitempty"`
}

type MilkingUpdate struct {
	ID    int64
	Input MilkingInput
}

// MilkingSummary aggregates one day of milking.
type MilkingSummary struct {
	Date          string  `json:"date"`
	TotalQuantity float64 `json:"totalQuantity"`
	AnimalCount   int     `json:"animalCount"`
	Average       float64 `json:"averageQuantity"`
}

type HealthRecord struct {
	ID           int64   `json:"id"`
	AnimalID     int64   `json:"animalId"`
	Date         string  `json:"date"`
	Type         string  `json:"type"`
	Description  string  `json:"description"`
	Veterinarian string  `json:"veterinarian,omitempty"`
	Medication   string  `json:"medication,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

type HealthInput struct {
	AnimalID     int64   `json:"animalId" validate:"required,gt=0"`
	Date         string  `json:"date" validate:"required,isodate"`
	Type         string  `json:"type" validate:"required,oneof=vaccination treatment checkup illness injury"`
	Description  string  `json:"description" validate:"required"`
	Veterinarian string  `json:"veterinarian,omitempty"`
	Medication   string  `json:"medication,omitempty"`
	Cost         float64 `json:"cost,omitempty" validate:"gte=0"`
	Notes        string  `json:"notes,omitempty"`
}

type HealthUpdate struct {
	ID    int64
	Input HealthInput
}

// RecordRef identifies a record that belongs to an animal. AnimalID may be zero when
// it is unknown; invalidation then covers every animal.
type RecordRef struct {
	ID       int64
	AnimalID int64
}

type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type UserInput struct {
	Name     string `json:"name" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8"`
	Role     Role   `json:"role" validate:"required,role"`
}

type UserUpdate struct {
	ID    int64
	Input UserInput
}

type RoleChange struct {
	ID   int64 `json:"-"`
	Role Role  `json:"role" validate:"required,role"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// VersionInfo is the server's build and API version.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}
