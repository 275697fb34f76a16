package utils

import (
	"time"

	"thesisdefense_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type Sender struct {
	Type string `json:"type"` // "system" or "user"
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Recipient struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	UserID    uint        `json:"user_id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Channels  models.JSON `json:"channels,omitempty"`
	Data      models.JSON `json:"data,omitempty"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	Sender    Sender      `json:"sender"`
	Recipient Recipient   `json:"recipient"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Channels:  n.Channels,
		Data:      n.Data,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		Sender:    Sender{Type: "system", Name: "Defense Scheduler"},
		Recipient: Recipient{Type: "user", ID: n.UserID},
	}
}

// PanelistProfile is the public view of a panelist shown to admins and on schedules.
type PanelistProfile struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Expertise  string `json:"expertise,omitempty"`
	Status     string `json:"status"`
}

func ToPanelistProfile(u models.User) PanelistProfile {
	return PanelistProfile{
		ID:         u.ID,
		Name:       u.FullName(),
		Email:      u.Email,
		Department: u.Department,
		Expertise:  u.Expertise,
		Status:     u.Status,
	}
}

// Account is the login identity of the authenticated user.
type Account struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func ToAccount(u models.User) Account {
	a := Account{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
	if u.Username != nil {
		a.Username = *u.Username
	}
	return a
}

type PanelMemberDTO struct {
	PanelistID uint   `json:"panelist_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
}

type ScheduleDTO struct {
	ID          uint             `json:"id"`
	GroupID     uint             `json:"group_id"`
	GroupTitle  string           `json:"group_title"`
	LeaderName  string           `json:"leader_name"`
	DefenseDate string           `json:"defense_date"`
	StartTime   string           `json:"start_time"`
	EndTime     string           `json:"end_time"`
	RoomID      *uint            `json:"room_id"`
	RoomName    string           `json:"room_name,omitempty"`
	DefenseType string           `json:"defense_type"`
	Status      string           `json:"status"`
	Notes       string           `json:"notes,omitempty"`
	Panel       []PanelMemberDTO `json:"panel"`
}

// ToScheduleDTO expects Group, Room and Assignments.Panelist to be preloaded.
func ToScheduleDTO(s models.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:          s.ID,
		GroupID:     s.GroupID,
		GroupTitle:  s.Group.Title,
		LeaderName:  s.Group.LeaderName,
		DefenseDate: s.DefenseDate,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		RoomID:      s.RoomID,
		DefenseType: s.DefenseType,
		Status:      s.Status,
		Notes:       s.Notes,
		Panel:       make([]PanelMemberDTO, 0, len(s.Assignments)),
	}
	if s.Room != nil {
		dto.RoomName = s.Room.Name
	}
	for _, a := range s.Assignments {
		dto.Panel = append(dto.Panel, PanelMemberDTO{
			PanelistID: a.PanelistID,
			Name:       a.Panelist.FullName(),
			Email:      a.Panelist.Email,
			Role:       a.Role,
		})
	}
	return dto
}
