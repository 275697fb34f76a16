package models

import (
	"database/sql/driver"
	"time"
)

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Roles
const (
	RoleAdmin    = "admin"
	RolePanelist = "panelist"
)

// Account statuses
const (
	UserStatusPending  = "pending"
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// Thesis group statuses
const (
	GroupStatusPending    = "Pending"
	GroupStatusForDefense = "For Defense"
	GroupStatusDefended   = "Defended"
	GroupStatusCompleted  = "Completed"
)

// Schedule statuses
const (
	ScheduleStatusPending   = "Pending"
	ScheduleStatusConfirmed = "Confirmed"
	ScheduleStatusDone      = "Done"
	ScheduleStatusCancelled = "Cancelled"
)

// Panel roles
const (
	PanelRoleChair  = "Chair"
	PanelRoleCritic = "Critic"
	PanelRoleMember = "Member"
)

// User is the single account table for admins and panelists. Panelists register
// themselves as pending and receive a username when an admin approves them.
type User struct {
	BaseModel
	Username   *string `json:"username" gorm:"size:100;uniqueIndex"`
	Password   string  `json:"-" gorm:"size:255;not null"`
	Email      string  `json:"email" gorm:"size:255;not null;uniqueIndex"`
	FirstName  string  `json:"first_name" gorm:"size:100;not null"`
	LastName   string  `json:"last_name" gorm:"size:100;not null"`
	Department string  `json:"department" gorm:"size:150"`
	Expertise  string  `json:"expertise" gorm:"type:text"`
	Role       string  `json:"role" gorm:"size:20;not null;default:'panelist';index"`
	Status     string  `json:"status" gorm:"size:20;not null;default:'pending';index"`
}

// FullName returns "First Last".
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ThesisGroup is a student group defending one thesis.
type ThesisGroup struct {
	BaseModel
	LeaderName string `json:"leader_name" gorm:"size:200;not null"`
	Members    string `json:"members" gorm:"type:text"`
	Course     string `json:"course" gorm:"size:150;not null"`
	Title      string `json:"title" gorm:"size:500;not null"`
	Status     string `json:"status" gorm:"size:30;not null;default:'Pending';index"`

	// Relationships
	Thesis *Thesis `json:"thesis,omitempty" gorm:"foreignKey:GroupID"`
}

// Thesis is the optional 1:1 extension of a group carrying the adviser.
type Thesis struct {
	BaseModel
	GroupID     uint   `json:"group_id" gorm:"not null;uniqueIndex"`
	Title       string `json:"title" gorm:"size:500"`
	Abstract    string `json:"abstract" gorm:"type:text"`
	AdviserID   *uint  `json:"adviser_id" gorm:"index"`
	DocumentURL string `json:"document_url" gorm:"size:500"`

	// Relationships
	Adviser *User `json:"adviser,omitempty" gorm:"foreignKey:AdviserID"`
}

// Room model
type Room struct {
	BaseModel
	Name     string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Building string `json:"building" gorm:"size:150"`
	Capacity int    `json:"capacity"`
	Status   string `json:"status" gorm:"size:20;not null;default:'available'"` // available, maintenance
}

// Schedule is a defense session. A group has at most one schedule whose status
// is not Cancelled; booking updates that row in place.
type Schedule struct {
	BaseModel
	GroupID     uint   `json:"group_id" gorm:"not null;index"`
	DefenseDate string `json:"defense_date" gorm:"size:10;not null;index"` // YYYY-MM-DD
	StartTime   string `json:"start_time" gorm:"size:8;not null"`          // HH:MM:SS
	EndTime     string `json:"end_time" gorm:"size:8;not null"`            // HH:MM:SS
	RoomID      *uint  `json:"room_id" gorm:"index"`
	DefenseType string `json:"defense_type" gorm:"size:30;not null;default:'Final'"`
	Status      string `json:"status" gorm:"size:20;not null;default:'Pending';index"`
	Notes       string `json:"notes" gorm:"type:text"`
	CreatedByID uint   `json:"created_by_id"`

	// Relationships
	Group       ThesisGroup  `json:"group" gorm:"foreignKey:GroupID"`
	Room        *Room        `json:"room,omitempty" gorm:"foreignKey:RoomID"`
	Assignments []Assignment `json:"assignments,omitempty" gorm:"foreignKey:ScheduleID"`
}

// Assignment places one panelist on a schedule in one role.
type Assignment struct {
	BaseModel
	ScheduleID     uint       `json:"schedule_id" gorm:"not null;uniqueIndex:idx_assignment_schedule_panelist"`
	GroupID        uint       `json:"group_id" gorm:"not null;index"`
	PanelistID     uint       `json:"panelist_id" gorm:"not null;uniqueIndex:idx_assignment_schedule_panelist;index"`
	Role           string     `json:"role" gorm:"size:20;not null"`
	ReminderSentAt *time.Time `json:"reminder_sent_at"`

	// Relationships
	Panelist User `json:"panelist" gorm:"foreignKey:PanelistID"`
}

// Availability is a weekly slot a panelist declares free.
type Availability struct {
	BaseModel
	PanelistID uint   `json:"panelist_id" gorm:"not null;index"`
	DayOfWeek  string `json:"day_of_week" gorm:"size:10;not null"`
	StartTime  string `json:"start_time" gorm:"size:8;not null"`
	EndTime    string `json:"end_time" gorm:"size:8;not null"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID   uint       `json:"user_id" gorm:"not null;index"`
	Title    string     `json:"title" gorm:"size:255;not null"`
	Message  string     `json:"message" gorm:"type:text;not null"`
	Type     string     `json:"type" gorm:"size:20;not null"` // info, warning, error, success
	Channels JSON       `json:"channels" gorm:"type:json"`
	Data     JSON       `json:"data,omitempty" gorm:"type:json"`
	Read     bool       `json:"read" gorm:"default:false"`
	ReadAt   *time.Time `json:"read_at"`
}

// AuditLog records mutating admin and panelist actions.
type AuditLog struct {
	BaseModel
	UserID     uint   `json:"user_id" gorm:"index"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Email delivery statuses
const (
	EmailStatusQueued = "queued"
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLog is both the delivery log and the outbox drained by the mailer.
type EmailLog struct {
	BaseModel
	Recipient string     `json:"recipient" gorm:"size:255;not null;index"`
	Subject   string     `json:"subject" gorm:"size:255;not null"`
	Body      string     `json:"-" gorm:"type:text"`
	Template  string     `json:"template" gorm:"size:50"`
	Status    string     `json:"status" gorm:"size:20;not null;default:'queued';index"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error" gorm:"type:text"`
	SentAt    *time.Time `json:"sent_at"`
}

// AuditArchive tracks audit log batches moved to S3.
type AuditArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&ThesisGroup{},
		&Thesis{},
		&Room{},
		&Schedule{},
		&Assignment{},
		&Availability{},
		&Notification{},
		&AuditLog{},
		&EmailLog{},
		&AuditArchive{},
	}
}
